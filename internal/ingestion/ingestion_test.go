package ingestion

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trustguide/directory/internal/apperr"
	"github.com/trustguide/directory/internal/clock"
	"github.com/trustguide/directory/internal/connectors"
	"github.com/trustguide/directory/internal/model"
	"github.com/trustguide/directory/internal/repository/memory"
)

type fakeConnector struct {
	name    string
	records []connectors.SourceFacilityInput
	err     error
	calls   int
}

func (f *fakeConnector) SourceName() string { return f.name }

func (f *fakeConnector) FetchFacilities(_ context.Context) ([]connectors.SourceFacilityInput, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.records, nil
}

func input(name, address, city, postal string, inspectedAt time.Time) connectors.SourceFacilityInput {
	return connectors.SourceFacilityInput{
		SourceID:    name,
		Name:        name,
		Address:     address,
		City:        city,
		PostalCode:  postal,
		InspectedAt: inspectedAt,
		LetterGrade: "A",
	}
}

func TestCoordinator_Refresh_DedupKeepsLaterInspection(t *testing.T) {
	ctx := context.Background()
	store := memory.New(nil)

	earlier := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	later := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

	c1 := &fakeConnector{name: "san_diego", records: []connectors.SourceFacilityInput{
		input("Mastro's", "1 Main St", "San Diego", "92101", earlier),
	}}
	c2 := &fakeConnector{name: "la_county", records: []connectors.SourceFacilityInput{
		input("mastro's", "1 main st", "san diego", "92101", later),
	}}

	co := New(store, []connectors.Connector{c1, c2}, nil)
	require.NoError(t, co.Refresh(ctx))

	facilities, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, facilities, 1)
	latest, ok := facilities[0].LatestInspection()
	require.True(t, ok)
	assert.True(t, latest.InspectedAt.Equal(later))
}

func TestCoordinator_Refresh_SafetyGateAbortsOnSharpDrop(t *testing.T) {
	ctx := context.Background()
	store := memory.New(nil)

	// Seed a previous status claiming 1000 unique facilities.
	require.NoError(t, store.SetSystemIngestionStatus(ctx, model.SystemIngestionStatus{
		LastRefreshAt:    time.Now(),
		UniqueFacilities: 1000,
	}))

	var records []connectors.SourceFacilityInput
	for i := 0; i < 400; i++ {
		records = append(records, input(
			"Facility "+string(rune('A'+i%26))+string(rune('0'+i/26)),
			"addr", "city", "90001", time.Now()))
	}
	c1 := &fakeConnector{name: "la_county", records: records}

	co := New(store, []connectors.Connector{c1}, nil)
	err := co.Refresh(ctx)
	require.Error(t, err)
	assert.Equal(t, apperr.ConnectorFailure, apperr.KindOf(err))

	status, ok, err := store.GetSystemIngestionStatus(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 1000, status.UniqueFacilities)
}

func TestCoordinator_Refresh_OneConnectorFailingDoesNotAbort(t *testing.T) {
	ctx := context.Background()
	store := memory.New(nil)

	good := &fakeConnector{name: "san_diego", records: []connectors.SourceFacilityInput{
		input("Taco Shop", "2 Elm St", "San Diego", "92102", time.Now()),
	}}
	bad := &fakeConnector{name: "long_beach", err: assertErr("network down")}

	co := New(store, []connectors.Connector{good, bad}, nil)
	require.NoError(t, co.Refresh(ctx))

	status, ok, err := store.GetSystemIngestionStatus(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 1, status.UniqueFacilities)

	var sawError bool
	for _, c := range status.Connectors {
		if c.Source == "long_beach" {
			sawError = c.Error != ""
		}
	}
	assert.True(t, sawError, "long_beach's failure should be recorded without aborting the cycle")
	// bad connector is attempted 3 times in total before giving up.
	assert.Equal(t, 3, bad.calls)
}

func TestCoordinator_Refresh_AllConnectorsFailLeavesSnapshotUntouched(t *testing.T) {
	ctx := context.Background()
	store := memory.New(nil)

	initial := []model.Facility{{
		ID:           "lac::x",
		Name:         "X",
		Jurisdiction: model.LosAngelesCounty,
		TrustScore:   80,
		Inspections:  []model.Inspection{{InspectionID: "lac-x", InspectedAt: time.Now()}},
	}}
	require.NoError(t, store.ReplaceAll(ctx, initial))
	require.NoError(t, store.SetSystemIngestionStatus(ctx, model.SystemIngestionStatus{UniqueFacilities: 1}))

	bad := &fakeConnector{name: "long_beach", err: assertErr("down")}
	co := New(store, []connectors.Connector{bad}, clock.Fixed(time.Now()))

	err := co.Refresh(ctx)
	require.Error(t, err)

	facilities, err := store.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, initial, facilities)
}

type assertErr string

func (e assertErr) Error() string { return string(e) }
