package bigquery

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/bigquery"

	"github.com/angelmondragon/carbridge-backend/pkg/config"
	"github.com/angelmondragon/carbridge-backend/pkg/gcp"
	"github.com/angelmondragon/carbridge-backend/pkg/logger"
)

const metadataCheckTimeout = 10 * time.Second

var (
	errDatasetRequired = errors.New("bigquery dataset is required")
	errTableRequired   = errors.New("bigquery table name is required")
	errNotInitialized  = errors.New("bigquery client not initialized")
)

// Client streams rows into one dataset. Tables are provisioned by
// infrastructure; the client only checks they exist.
type Client struct {
	client       *bigquery.Client
	dataset      *bigquery.Dataset
	journeyTable string
}

func NewClient(ctx context.Context, gcpCfg config.GCPConfig, cfg config.BigQueryConfig, logg *logger.Logger) (*Client, error) {
	project, err := gcp.ProjectID(gcpCfg)
	if err != nil {
		return nil, err
	}
	datasetID := strings.TrimSpace(cfg.Dataset)
	if datasetID == "" {
		return nil, errDatasetRequired
	}
	journeyTable := strings.TrimSpace(cfg.JourneyEventsTable)
	if journeyTable == "" {
		return nil, errTableRequired
	}

	bq, err := bigquery.NewClient(ctx, project, gcp.ClientOptions(gcpCfg)...)
	if err != nil {
		return nil, fmt.Errorf("create bigquery client: %w", err)
	}
	c := &Client{client: bq, dataset: bq.Dataset(datasetID), journeyTable: journeyTable}

	if err := c.Ping(ctx); err != nil {
		_ = bq.Close()
		return nil, err
	}
	if logg != nil {
		logg.Info(logg.WithFields(ctx, map[string]any{
			"dataset": datasetID,
			"table":   journeyTable,
		}), "bigquery.client.ready")
	}
	return c, nil
}

// Ping checks the dataset and the journey table are reachable.
func (c *Client) Ping(ctx context.Context) error {
	if c == nil || c.dataset == nil {
		return errNotInitialized
	}
	ctx, cancel := context.WithTimeout(ctx, metadataCheckTimeout)
	defer cancel()

	if _, err := c.dataset.Metadata(ctx); err != nil {
		return describeMetadataErr("dataset", c.dataset.DatasetID, err)
	}
	if _, err := c.dataset.Table(c.journeyTable).Metadata(ctx); err != nil {
		return describeMetadataErr("table", c.journeyTable, err)
	}
	return nil
}

func describeMetadataErr(kind, name string, err error) error {
	if gcp.IsNotFound(err) {
		return fmt.Errorf("%s %q does not exist", kind, name)
	}
	return fmt.Errorf("check %s %q: %w", kind, name, err)
}

// InsertRows streams rows into table. Each row must be a struct pointer or a
// ValueSaver understood by the bigquery inserter.
func (c *Client) InsertRows(ctx context.Context, table string, rows []any) error {
	if c == nil || c.dataset == nil {
		return errNotInitialized
	}
	table = strings.TrimSpace(table)
	if table == "" {
		return errTableRequired
	}
	if len(rows) == 0 {
		return nil
	}
	return c.dataset.Table(table).Inserter().Put(ctx, rows)
}

// JourneyEventsTable is the table the warehouse exporter writes to.
func (c *Client) JourneyEventsTable() string {
	if c == nil {
		return ""
	}
	return c.journeyTable
}

func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}
