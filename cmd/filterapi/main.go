package main

import (
	"net/http"
	"os"

	"github.com/jinzhu/gorm"
	_ "github.com/jinzhu/gorm/dialects/postgres"
	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/querykit/filterset/cmd/filterapi/api"
	"github.com/querykit/filterset/datasource"
	"github.com/querykit/filterset/definition"
	"github.com/querykit/filterset/models/shop"
	"github.com/querykit/filterset/query"
	"github.com/querykit/filterset/schema"
	"github.com/querykit/filterset/util"
	"github.com/rs/zerolog"
)

func main() {
	log := zerolog.New(zerolog.NewConsoleWriter(func(w *zerolog.ConsoleWriter) { w.Out = os.Stdout })).With().Timestamp().Caller().Logger()

	if err := godotenv.Load(); err != nil {
		log.Debug().Msg("No .env file found, using environment")
	}

	registry := schema.NewRegistry(log)
	if err := shop.Register(registry); err != nil {
		log.Fatal().Err(err).Msg("Failed to register models")
	}

	cacheDir := os.Getenv("DEFINITIONS_CACHE")
	if cacheDir == "" {
		cacheDir = util.GetAbsolutePath("cache/definitions")
	}
	repo := definition.NewRepository(cacheDir, log)

	if err := loadDefinitions(repo); err != nil {
		log.Fatal().Err(err).Msg("Failed to load filter set definitions")
	}

	service := definition.NewService(repo, registry, log)
	if err := service.BuildAll(); err != nil {
		log.Error().Err(err).Msg("Some filter sets failed to build")
	}

	bases, err := buildCollections(registry, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to set up data sources")
	}

	router := api.NewRouter(service, bases, log)

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	log.Info().
		Str("port", port).
		Strs("filtersets", service.Names()).
		Msg("Starting filter API")
	log.Fatal().Err(http.ListenAndServe(":"+port, router.SetupRoutes())).Msg("Server stopped")
}

// loadDefinitions picks the definition source: a remote endpoint, a
// directory, or the bundled config file.
func loadDefinitions(repo *definition.Repository) error {
	if url := os.Getenv("DEFINITIONS_URL"); url != "" {
		return repo.LoadURL(url)
	}
	if dir := os.Getenv("DEFINITIONS_DIR"); dir != "" {
		return repo.LoadDir(dir)
	}
	path := os.Getenv("DEFINITIONS_FILE")
	if path == "" {
		path = util.GetAbsolutePath("config/filtersets.json")
	}
	return repo.LoadFile(path)
}

// buildCollections wires a collection per model: database-backed when
// DATABASE_URL is set, the bundled demo catalog otherwise.
func buildCollections(registry *schema.Registry, log zerolog.Logger) (map[string]datasource.Collection, error) {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		log.Info().Msg("DATABASE_URL not set, serving the in-memory demo catalog")
		matcher := query.NewMatcher(registry, log)
		return map[string]datasource.Collection{
			"Product": datasource.NewMemory(matcher, "Product", shop.SeedRecords()),
		}, nil
	}

	encoder := query.NewSQLEncoder(registry, log)
	bases := make(map[string]datasource.Collection)

	if os.Getenv("DATABASE_DRIVER") == "gorm" {
		db, err := gorm.Open("postgres", dsn)
		if err != nil {
			return nil, err
		}
		for _, name := range registry.Names() {
			bases[name] = datasource.NewGorm(db, registry, encoder, name, log)
		}
		log.Info().Msg("Connected to database via gorm")
		return bases, nil
	}

	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		return nil, err
	}
	for _, name := range registry.Names() {
		bases[name] = datasource.NewSQL(db, encoder, name, log)
	}
	log.Info().Msg("Connected to database via sqlx")
	return bases, nil
}