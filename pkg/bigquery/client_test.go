package bigquery

import (
	"context"
	"fmt"
	"net/http"
	"testing"

	cbq "cloud.google.com/go/bigquery"
	"github.com/stretchr/testify/assert"
	"google.golang.org/api/googleapi"

	"github.com/angelmondragon/carbridge-backend/pkg/config"
	"github.com/angelmondragon/carbridge-backend/pkg/gcp"
)

func TestNewClientValidatesConfig(t *testing.T) {
	ctx := context.Background()
	project := config.GCPConfig{ProjectID: "carbridge-dev"}

	_, err := NewClient(ctx, config.GCPConfig{}, config.BigQueryConfig{Dataset: "carbridge", JourneyEventsTable: "t"}, nil)
	assert.ErrorIs(t, err, gcp.ErrProjectIDRequired)

	_, err = NewClient(ctx, project, config.BigQueryConfig{Dataset: " ", JourneyEventsTable: "t"}, nil)
	assert.ErrorIs(t, err, errDatasetRequired)

	_, err = NewClient(ctx, project, config.BigQueryConfig{Dataset: "carbridge"}, nil)
	assert.ErrorIs(t, err, errTableRequired)
}

func TestDescribeMetadataErr(t *testing.T) {
	missing := describeMetadataErr("table", "deal_journey_events", &googleapi.Error{Code: http.StatusNotFound})
	assert.EqualError(t, missing, `table "deal_journey_events" does not exist`)

	cause := &googleapi.Error{Code: http.StatusForbidden, Message: "denied"}
	denied := describeMetadataErr("dataset", "carbridge", fmt.Errorf("get: %w", cause))
	assert.ErrorIs(t, denied, cause)
}

func TestNilClientGuards(t *testing.T) {
	var c *Client
	ctx := context.Background()
	assert.Empty(t, c.JourneyEventsTable())
	assert.ErrorIs(t, c.InsertRows(ctx, "t", []any{1}), errNotInitialized)
	assert.ErrorIs(t, c.Ping(ctx), errNotInitialized)
	assert.NoError(t, c.Close())
}

func TestInsertRowsSkipsEmptyBatch(t *testing.T) {
	c := &Client{dataset: &cbq.Dataset{ProjectID: "carbridge-dev", DatasetID: "carbridge"}}
	assert.NoError(t, c.InsertRows(context.Background(), "deal_journey_events", nil))
	assert.ErrorIs(t, c.InsertRows(context.Background(), " ", []any{1}), errTableRequired)
}
