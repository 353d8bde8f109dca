package handlers

import (
	"github.com/sirupsen/logrus"

	"github.com/mooviq/mooviq/internal/database"
	"github.com/mooviq/mooviq/internal/services"
	"github.com/mooviq/mooviq/internal/validation"
	"github.com/mooviq/mooviq/internal/ws"
)

type Handlers struct {
	Health         *HealthHandler
	Recommendation *RecommendationHandler
	Room           *RoomHandler
	User           *UserHandler
	Admin          *AdminHandler
}

func New(logger *logrus.Logger, svcs *services.Services, db *database.Database, hub *ws.Hub) (*Handlers, error) {
	validator, err := validation.NewSchemaValidator()
	if err != nil {
		return nil, err
	}

	return &Handlers{
		Health:         NewHealthHandler(db, svcs.Index, logger),
		Recommendation: NewRecommendationHandler(svcs.Recommendation, svcs.Emotion, validator, logger),
		Room:           NewRoomHandler(svcs.Rooms, hub, validator, logger),
		User:           NewUserHandler(svcs.Stores, svcs.Emotion, validator, logger),
		Admin:          NewAdminHandler(svcs.Index, svcs.Ingest, svcs.Stores.Content, logger),
	}, nil
}
