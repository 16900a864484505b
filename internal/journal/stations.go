package journal

import (
	"context"
	"strings"

	"github.com/radiojournal/backend/internal/keys"
	"github.com/radiojournal/backend/internal/store"
	"go.uber.org/zap"
)

const maxStationNameLength = 190

// GetStation reads a station by id.
func (s *Service) GetStation(ctx context.Context, stationID StationID) (Station, error) {
	record, err := s.store.Get(ctx, store.Key{
		PK: keys.StationsPartition(),
		SK: keys.StationSort(stationID.String()),
	}, store.GetOptions{})
	if err != nil {
		return Station{}, s.fail(opGetStation, "get_failed", err, zap.String("station_id", stationID.String()))
	}

	var item stationItem
	if err := record.Decode(&item); err != nil {
		return Station{}, s.fail(opGetStation, "decode_failed", err, zap.String("station_id", stationID.String()))
	}
	return item.Station, nil
}

// ListStations returns up to limit stations, oldest first.
func (s *Service) ListStations(ctx context.Context, limit int) ([]Station, error) {
	page, err := s.store.Query(ctx, store.Query{
		PartitionKey: keys.StationsPartition(),
		SortPrefix:   keys.StationSortPrefix(),
		Limit:        clampLimit(limit),
	})
	if err != nil {
		return nil, s.fail(opListStations, "query_failed", err)
	}

	stations := make([]Station, 0, len(page.Records))
	for _, record := range page.Records {
		var item stationItem
		if err := record.Decode(&item); err != nil {
			return nil, s.fail(opListStations, "decode_failed", err)
		}
		stations = append(stations, item.Station)
	}
	return stations, nil
}

// CreateStation persists a new station with zeroed counters.
func (s *Service) CreateStation(ctx context.Context, request NewStation) (Station, error) {
	name := strings.TrimSpace(request.Name)
	if name == "" {
		return Station{}, s.fail(opCreateStation, "missing_name", validationError("station name is required"))
	}
	if len(name) > maxStationNameLength {
		return Station{}, s.fail(opCreateStation, "name_too_long",
			validationError("station name exceeds %d characters", maxStationNameLength))
	}
	if request.Fetcher != nil {
		if err := request.Fetcher.Validate(); err != nil {
			return Station{}, s.fail(opCreateStation, "invalid_fetcher", validationError("%v", err))
		}
	}

	now := s.now()
	id, err := s.idProvider.NewID(now)
	if err != nil {
		return Station{}, s.fail(opCreateStation, "id_generation_failed", err)
	}

	station := Station{
		ID:        id,
		Name:      name,
		Location:  request.Location,
		Fetcher:   request.Fetcher,
		CreatedTS: now,
		UpdatedTS: now,
	}
	item := stationItem{
		PK:      keys.StationsPartition(),
		SK:      keys.StationSort(id),
		Station: station,
	}
	err = s.store.Put(ctx, store.Put{
		Item:       item,
		Conditions: []store.Condition{store.Absent(attrID)},
	})
	if err != nil {
		return Station{}, s.fail(opCreateStation, "put_failed", err, zap.String("station_id", id))
	}

	s.loggerOrDefault().Info("station created",
		zap.String("station_id", id),
		zap.String("name", name))
	return station, nil
}
