package handlers

import (
	"net/http"

	"github.com/youngacademy/platform/internal/portal"
)

// Feature is one entry of the landing page feature grid.
type Feature struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

// Plan is one pricing plan. Every plan is currently free.
type Plan struct {
	Name        string   `json:"name"`
	Price       float64  `json:"price"`
	Description string   `json:"description"`
	Popular     bool     `json:"popular"`
	Features    []string `json:"features"`
}

var landingFeatures = []Feature{
	{Title: "Hochwertige Tutorials", Description: "Hochwertige Video-Tutorials mit praktischen Tipps und Tricks, die dir helfen, schnell zu lernen."},
	{Title: "Live-Sessions", Description: "Regelmäßige Live-Kurse mit Experten für direktes Lernen und Q&A-Sessions."},
	{Title: "Flexible Zeiten", Description: "Lerne in deinem eigenen Tempo - alle Inhalte sind 24/7 verfügbar."},
	{Title: "Eigene Kurse", Description: "Wünsche dir Kurse, und mit etwas Glück wird dein Wunschkurs umgesetzt!"},
	{Title: "Community", Description: "Vernetze dich mit anderen Lernenden und tausche Erfahrungen aus."},
	{Title: "Premium Support", Description: "Direkter Support von unseren Experten bei Fragen und Problemen."},
}

var landingPlans = []Plan{
	{
		Name:        "Young Academy Artikel",
		Description: "Unser gesamtes Text-Kursangebot kostenlos!",
		Features:    []string{"Statt Videos: Artikel", "Vollen Zugriff auf alle Kurse", "Alles kostenlos!", "24/7 Zugriff", "Und mehr..."},
	},
	{
		Name:        "Young Academy All-Inclusive",
		Description: "Unser gesamtes Kursangebot kostenlos!",
		Popular:     true,
		Features:    []string{"Zugriff auf alle Kurse", "Vereinzelte Live-Sessions", "Kurs Wünsche", "Discord Support", "Und mehr..."},
	},
	{
		Name:        "Young Academy Starter",
		Description: "Unser gesamtes Video-Kursangebot kostenlos!",
		Features:    []string{"Zugriff auf alle Kurse", "Vereinzelte Live-Sessions", "Kurs Wünsche", "Discord Support", "Und mehr..."},
	},
}

type landingResponse struct {
	Features []Feature       `json:"features"`
	Plans    []Plan          `json:"plans"`
	Session  sessionResponse `json:"session"`
}

// LandingHandler serves the data of the marketing page.
type LandingHandler struct{}

// Handle implements GET /.
func (LandingHandler) Handle(w http.ResponseWriter, r *http.Request, inst *portal.Instance) {
	respondJSON(r.Context(), w, http.StatusOK, landingResponse{
		Features: landingFeatures,
		Plans:    landingPlans,
		Session:  newSessionResponse(inst, false),
	})
}
