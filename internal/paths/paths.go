package paths

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"go-ytqueue/internal/helpers"
	"go-ytqueue/internal/models"
)

// DefaultFileTemplate is the engine output template used for titles that are unique in a batch.
const DefaultFileTemplate = "%(title)s.%(ext)s"

// Define allowed tags using a map for easy lookup
var allowedTags = map[string]struct{}{
	"author":    {},
	"kind":      {},
	"quality":   {},
	"container": {},
	"videoId":   {},
}

// Regex to find tags like {tagName}
var tagRegex = regexp.MustCompile(`\{([^}]+)\}`)

// GeneratePath substitutes placeholders in a pattern string with sanitized values from the data map.
// It returns the generated relative path string or an error if substitution fails.
func GeneratePath(pattern string, data map[string]string) (string, error) {
	generatedPath := pattern

	for _, match := range tagRegex.FindAllStringSubmatch(pattern, -1) {
		tagName := match[1]
		tagWithBraces := match[0]

		if _, allowed := allowedTags[tagName]; !allowed {
			return "", fmt.Errorf("unknown tag found in path pattern: %s", tagWithBraces)
		}

		sanitizedValue := helpers.ConvertToSlug(data[tagName])
		if sanitizedValue == "" {
			sanitizedValue = "empty_" + tagName
		}
		generatedPath = strings.ReplaceAll(generatedPath, tagWithBraces, sanitizedValue)
	}

	cleanedPath := filepath.Clean(generatedPath)
	if cleanedPath == "." || cleanedPath == "" {
		return "", fmt.Errorf("generated path pattern resulted in an empty or invalid path: '%s'", pattern)
	}
	cleanedPath = strings.TrimPrefix(cleanedPath, string(filepath.Separator))

	if strings.Contains(cleanedPath, "..") {
		return "", fmt.Errorf("generated path contains invalid sequence '..': %s", cleanedPath)
	}

	return cleanedPath, nil
}

// TemplateData builds the substitution map for one record of a batch.
func TemplateData(record models.VideoRecord, params models.DownloadParameters) map[string]string {
	return map[string]string{
		"author":    record.Author,
		"kind":      params.Kind,
		"quality":   params.Quality,
		"container": params.Container,
		"videoId":   record.ID,
	}
}

// OutputTemplate returns the full engine output template for a record.
// subPattern is an optional directory pattern below the output directory.
// withID appends the record id to the filename so colliding titles stay apart.
func OutputTemplate(record models.VideoRecord, params models.DownloadParameters, subPattern string, withID bool) (string, error) {
	dir := params.OutputDirectory
	if subPattern != "" {
		sub, err := GeneratePath(subPattern, TemplateData(record, params))
		if err != nil {
			return "", err
		}
		dir = filepath.Join(dir, sub)
	}

	file := DefaultFileTemplate
	if withID {
		file = fmt.Sprintf("%%(title)s [%s].%%(ext)s", escapeTemplate(record.ID))
	}
	return filepath.Join(escapeTemplate(dir), file), nil
}

// CollidingIDs returns the ids of records whose titles map to the same filename as another
// record in the same batch.
func CollidingIDs(records []models.VideoRecord) map[string]bool {
	byKey := make(map[string][]string, len(records))
	for _, r := range records {
		key := helpers.ConvertToSlug(r.Title)
		if key == "" {
			key = strings.ToLower(strings.TrimSpace(r.Title))
		}
		byKey[key] = append(byKey[key], r.ID)
	}

	colliding := make(map[string]bool)
	for _, ids := range byKey {
		if len(ids) < 2 {
			continue
		}
		for _, id := range ids {
			colliding[id] = true
		}
	}
	return colliding
}

// yt-dlp treats % as a template directive.
func escapeTemplate(s string) string {
	return strings.ReplaceAll(s, "%", "%%")
}
