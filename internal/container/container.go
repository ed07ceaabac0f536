package container

import (
	"fmt"
	"path/filepath"

	"smefit/adapters/powerdata"
	"smefit/adapters/results"
	"smefit/app"
	"smefit/internal"
	"smefit/internal/config"
	"smefit/ports"
)

// Container holds the application's adapters and manages their lifecycle.
// Commands take what they need instead of reassembling the store and
// cache by hand; expensive dependencies open on first use.
type Container struct {
	Config *config.Config
	Log    *internal.Logger

	store    *results.Store
	cache    *powerdata.Cache
	analysis *app.AnalysisService
}

// New creates a container around loaded configuration
func New(cfg *config.Config, log *internal.Logger) (*Container, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if log == nil {
		log = internal.DefaultLogger
	}
	return &Container{Config: cfg, Log: log}, nil
}

// Store opens the result store on first use and reuses it afterwards
func (c *Container) Store() (*results.Store, error) {
	if c.store == nil {
		store, err := results.Open(c.Config.Store, c.Log)
		if err != nil {
			return nil, err
		}
		c.store = store
	}
	return c.store, nil
}

// PowerCache returns the subject power cache rooted in the data directory
func (c *Container) PowerCache() *powerdata.Cache {
	if c.cache == nil {
		c.cache = powerdata.NewCache(filepath.Join(c.Config.Paths.DataDir, "power"), c.Log)
	}
	return c.cache
}

// Analysis returns the shared analysis service
func (c *Container) Analysis() *app.AnalysisService {
	if c.analysis == nil {
		c.analysis = app.NewAnalysisService(c.Log)
	}
	return c.analysis
}

// EventsPath locates a subject's events workbook inside the data directory
func (c *Container) EventsPath(key ports.SubjectKey) string {
	name := fmt.Sprintf("%s_%s_%d_events.xlsx", key.Subject, key.Task, key.Montage)
	return filepath.Join(c.Config.Paths.DataDir, "events", name)
}

// Shutdown closes everything the container opened
func (c *Container) Shutdown() error {
	if c.store != nil {
		return c.store.Close()
	}
	return nil
}
