package database

import (
	"context"
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/dfvmonitor/energyforecast/internal/log"
	"github.com/dfvmonitor/energyforecast/internal/types"
	"go.uber.org/zap"
)

// Client holds the connection to the PostgreSQL/TimescaleDB reading store
type Client struct {
	connectionString string
	DB               *gorm.DB // Exported so it can be accessed from other packages
	logger           *zap.SugaredLogger
}

// TableSpan summarises the readings held for one controller.
type TableSpan struct {
	Controller string     `json:"controller"`
	FirstDate  *time.Time `json:"first_date,omitempty" gorm:"column:first_date"`
	LastDate   *time.Time `json:"last_date,omitempty" gorm:"column:last_date"`
	Readings   int64      `json:"readings" gorm:"column:readings"`
}

// NewClient creates a new database client
func NewClient(connectionString string, logger *zap.SugaredLogger) *Client {
	return &Client{
		connectionString: connectionString,
		logger:           logger,
	}
}

// Connect connects to the reading database
func (c *Client) Connect() error {
	db, err := CreateConnection(c.connectionString)
	if err != nil {
		return err
	}
	c.DB = db
	c.logger.Info("database connection successful")
	return nil
}

// ExecuteQuery implements QueryExecutor over the gorm connection pool.
func (c *Client) ExecuteQuery(ctx context.Context, query string, args ...any) ([][]any, error) {
	if c.DB == nil {
		return nil, ErrNotConnected
	}

	sqlDB, err := c.DB.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	start := time.Now()
	rows, err := queryRows(ctx, sqlDB, query, args...)
	if err != nil {
		return nil, err
	}
	c.logger.Debugw("query executed", "rows", len(rows), "duration", time.Since(start))

	return rows, nil
}

// Span returns the first and last reading date and the row count for a controller.
func (c *Client) Span(ctx context.Context, ctrl types.Controller) (TableSpan, error) {
	if c.DB == nil {
		return TableSpan{}, ErrNotConnected
	}
	if !ctrl.Valid() {
		return TableSpan{}, fmt.Errorf("unknown controller %v", ctrl)
	}

	span := TableSpan{Controller: ctrl.String()}
	m := ctrl.Columns()
	err := c.DB.WithContext(ctx).
		Table(m.Table).
		Select("MIN(date) AS first_date, MAX(date) AS last_date, COUNT(*) AS readings").
		Where(fmt.Sprintf("%s IS NOT NULL", m.Power)).
		Scan(&span).Error
	if err != nil {
		return TableSpan{}, fmt.Errorf("error querying span of %s: %w", m.Table, err)
	}
	return span, nil
}

// Ping verifies the connection is alive.
func (c *Client) Ping(ctx context.Context) error {
	if c.DB == nil {
		return ErrNotConnected
	}
	sqlDB, err := c.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close releases the connection pool.
func (c *Client) Close() error {
	if c.DB == nil {
		return nil
	}
	sqlDB, err := c.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// CreateConnection is a helper function to create a database connection with standard GORM configuration
func CreateConnection(connectionString string) (*gorm.DB, error) {
	// Create a logger for gorm
	dbLogger := logger.New(
		zap.NewStdLog(log.GetZapLogger()),
		logger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)

	log.Info("connecting to reading database...")
	db, err := gorm.Open(postgres.Open(connectionString), &gorm.Config{Logger: dbLogger})
	if err != nil {
		log.Warn("warning: unable to create a database connection:", err)
		return nil, err
	}

	return db, nil
}
