package category

import (
	"encoding/json"
	"net/http"
)

type detectRequest struct {
	Text string `json:"text"`
}

func DetectHandler(detector *Detector) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req detectRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		suggestion := detector.Detect(r.Context(), req.Text)

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(suggestion)
	}
}
