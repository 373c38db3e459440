package campaign

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"settlement-service/internal/db"
)

// Reader is the read surface the campaign endpoint needs.
type Reader interface {
	GetCampaignByID(ctx context.Context, id string) (*db.CampaignEntity, error)
	SumCompletedDonations(ctx context.Context, campaignID string) (int64, error)
}

type campaignResponse struct {
	ID             string `json:"id"`
	Title          string `json:"title"`
	GoalAmount     *int64 `json:"goalAmount,omitempty"`
	CurrentAmount  int64  `json:"currentAmount"`
	DonationsTotal int64  `json:"donationsTotal"`
	Active         bool   `json:"active"`
}

// GetHandler returns a campaign with both the stored running total and
// the total derived from its completed donations; the two are equal
// unless the aggregate has drifted.
func GetHandler(reader Reader, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")

		entity, err := reader.GetCampaignByID(r.Context(), id)
		if err != nil {
			if errors.Is(err, db.ErrCampaignNotFound) {
				http.Error(w, "campaign not found", http.StatusNotFound)
				return
			}
			logger.ErrorContext(r.Context(), "Error loading campaign", "error", err)
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}

		sum, err := reader.SumCompletedDonations(r.Context(), id)
		if err != nil {
			logger.ErrorContext(r.Context(), "Error summing donations", "error", err)
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(campaignResponse{
			ID:             entity.ID,
			Title:          entity.Title,
			GoalAmount:     entity.GoalAmount,
			CurrentAmount:  entity.CurrentAmount,
			DonationsTotal: sum,
			Active:         entity.Active,
		})
	}
}
