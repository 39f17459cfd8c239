package orchestrator

import (
	"fmt"

	"go-ytqueue/internal/models"
)

// StatusLine renders the one-line status shown while a batch runs.
// Bulk batches report counts; single batches report the speed and ETA of the last progress event.
func StatusLine(status models.BatchStatus, mode string, last *models.ProgressEvent) string {
	if mode == models.ModeBulk {
		return fmt.Sprintf("Downloading %d files... (%d/%d completed)", status.ActiveCount, status.Completed, status.TotalCount)
	}
	if last == nil {
		return "Starting download..."
	}
	return fmt.Sprintf("Speed: %s | ETA: %s", last.SpeedLabel, last.ETALabel)
}

// ResultMessage renders the summary shown once a batch is done.
func ResultMessage(result *models.BatchResult) string {
	if result == nil {
		return ""
	}
	switch result.Outcome {
	case models.OutcomeAllSuccess:
		return fmt.Sprintf("All %d downloads completed successfully!", result.Total)
	case models.OutcomeCancelled:
		return fmt.Sprintf("Downloads cancelled (%d of %d completed)", len(result.Succeeded), result.Total)
	default:
		return "Downloads completed with some errors. Check individual statuses."
	}
}
