package di

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"cloud.google.com/go/pubsub"
	gcs "cloud.google.com/go/storage"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/iterator"

	"github.com/genmedia-studio/api/internal/platform/auth"
	"github.com/genmedia-studio/api/internal/platform/config"
	pfirestore "github.com/genmedia-studio/api/internal/platform/firestore"
	"github.com/genmedia-studio/api/internal/platform/jobs"
	platformstorage "github.com/genmedia-studio/api/internal/platform/storage"
	"github.com/genmedia-studio/api/internal/platform/vertex"
	"github.com/genmedia-studio/api/internal/platform/vision"
	"github.com/genmedia-studio/api/internal/repositories"
	firestoreRepo "github.com/genmedia-studio/api/internal/repositories/firestore"
	"github.com/genmedia-studio/api/internal/services"

	"github.com/oklog/ulid/v2"
)

const vertexScope = "https://www.googleapis.com/auth/cloud-platform"

// Container wires platform clients, repositories, and services for runtime use.
type Container struct {
	Config config.Config

	Authenticator *auth.Authenticator
	Generation    services.GenerationService
	Library       services.LibraryService
	Health        repositories.HealthRepository

	firestoreProvider *pfirestore.Provider
	storageClient     *gcs.Client
	pubsubClient      *pubsub.Client
	mediaTopic        *pubsub.Topic
}

// ContainerDeps carries the externally constructed inputs for NewContainer.
// TokenSource is optional; when nil the application default credentials are used.
type ContainerDeps struct {
	Config      config.Config
	Logger      *zap.Logger
	TokenSource oauth2.TokenSource
}

// NewContainer constructs and connects every runtime dependency. The caller
// owns the returned container and must Close it on shutdown.
func NewContainer(ctx context.Context, deps ContainerDeps) (*Container, error) {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg := deps.Config

	c := &Container{Config: cfg}
	ok := false
	defer func() {
		if !ok {
			closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = c.Close(closeCtx)
		}
	}()

	c.firestoreProvider = pfirestore.NewProvider(cfg.Firestore)
	firestoreClient, err := c.firestoreProvider.Client(ctx)
	if err != nil {
		return nil, fmt.Errorf("di: firestore client: %w", err)
	}

	c.storageClient, err = gcs.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("di: storage client: %w", err)
	}
	writer, err := platformstorage.NewWriter(c.storageClient)
	if err != nil {
		return nil, fmt.Errorf("di: storage writer: %w", err)
	}
	copier, err := platformstorage.NewCopier(c.storageClient)
	if err != nil {
		return nil, fmt.Errorf("di: storage copier: %w", err)
	}

	signer, err := buildSigner(cfg.Storage)
	if err != nil {
		return nil, err
	}
	signedURLClient, err := platformstorage.NewClient(signer)
	if err != nil {
		return nil, fmt.Errorf("di: signed url client: %w", err)
	}

	tokens := deps.TokenSource
	if tokens == nil {
		tokens, err = google.DefaultTokenSource(ctx, vertexScope)
		if err != nil {
			return nil, fmt.Errorf("di: default token source: %w", err)
		}
	}
	backend, err := vertex.NewClient(vertex.Config{
		ProjectID: cfg.Vertex.ProjectID,
		Region:    cfg.Vertex.Region,
	}, tokens)
	if err != nil {
		return nil, fmt.Errorf("di: vertex client: %w", err)
	}

	describer, err := vision.NewDescriber(ctx, vision.Config{
		ProjectID: cfg.Vertex.ProjectID,
		Region:    cfg.Vertex.Region,
		Model:     cfg.Vision.Model,
	})
	if err != nil {
		return nil, fmt.Errorf("di: vision describer: %w", err)
	}

	assembler, err := services.NewPromptAssembler(services.PromptAssemblerDeps{
		Descriptions: describer,
		Logger:       zapEventLogger(logger.Named("assembler")),
	})
	if err != nil {
		return nil, fmt.Errorf("di: prompt assembler: %w", err)
	}

	enricher, err := services.NewMediaEnricher(services.MediaEnricherDeps{
		Persister: writer,
		Signer:    signedURLClient,
		Copier:    copier,
		Bucket:    cfg.Storage.MediaBucket,
		URLTTL:    cfg.Generation.SignedURLTTL,
		Logger:    zapEventLogger(logger.Named("enricher")),
	})
	if err != nil {
		return nil, fmt.Errorf("di: media enricher: %w", err)
	}

	c.Generation, err = services.NewGenerationService(services.GenerationServiceDeps{
		Backend:   backend,
		Assembler: assembler,
		Enricher:  enricher,
		Config: services.GenerationConfig{
			ImageModel:       cfg.Vertex.ImageModel,
			VideoModel:       cfg.Vertex.VideoModel,
			ImageModelLabel:  cfg.Vertex.ImageModelLabel,
			VideoModelLabel:  cfg.Vertex.VideoModelLabel,
			SampleCount:      cfg.Generation.SampleCount,
			AspectRatio:      cfg.Generation.AspectRatio,
			PersonGeneration: cfg.Vertex.PersonGeneration,
			OutputMimeType:   cfg.Generation.OutputMimeType,
			StorageURIPrefix: cfg.Vertex.StorageURIPrefix,
		},
		Logger: zapEventLogger(logger.Named("generation")),
	})
	if err != nil {
		return nil, fmt.Errorf("di: generation service: %w", err)
	}

	mediaRepo, err := firestoreRepo.NewMediaRepository(c.firestoreProvider)
	if err != nil {
		return nil, fmt.Errorf("di: media repository: %w", err)
	}

	var publisher services.MediaEventPublisher
	if topicName := strings.TrimSpace(cfg.Events.MediaTopic); topicName != "" {
		c.pubsubClient, err = pubsub.NewClient(ctx, cfg.Firestore.ProjectID)
		if err != nil {
			return nil, fmt.Errorf("di: pubsub client: %w", err)
		}
		c.mediaTopic = c.pubsubClient.Topic(topicName)
		publisher, err = jobs.NewPubSubMediaPublisher(c.mediaTopic)
		if err != nil {
			return nil, fmt.Errorf("di: media publisher: %w", err)
		}
	}

	c.Library, err = services.NewLibraryService(services.LibraryServiceDeps{
		Repo:      mediaRepo,
		Publisher: publisher,
		IDFunc:    func() string { return ulid.Make().String() },
		Logger:    zapEventLogger(logger.Named("library")),
	})
	if err != nil {
		return nil, fmt.Errorf("di: library service: %w", err)
	}

	firebaseVerifier, err := auth.NewFirebaseVerifier(ctx, cfg.Firebase)
	if err != nil {
		return nil, fmt.Errorf("di: firebase verifier: %w", err)
	}
	c.Authenticator = auth.NewAuthenticator(firebaseVerifier, auth.WithUserGetter(firebaseVerifier))

	c.Health, err = buildHealthRepository(firestoreClient, c.storageClient, cfg.Storage.MediaBucket)
	if err != nil {
		return nil, fmt.Errorf("di: health repository: %w", err)
	}

	ok = true
	return c, nil
}

// Close releases every client the container owns.
func (c *Container) Close(ctx context.Context) error {
	if c == nil {
		return nil
	}
	var errs []error
	if c.mediaTopic != nil {
		c.mediaTopic.Stop()
	}
	if c.pubsubClient != nil {
		if err := c.pubsubClient.Close(); err != nil {
			errs = append(errs, fmt.Errorf("pubsub close: %w", err))
		}
	}
	if c.storageClient != nil {
		if err := c.storageClient.Close(); err != nil {
			errs = append(errs, fmt.Errorf("storage close: %w", err))
		}
	}
	if c.firestoreProvider != nil {
		if err := c.firestoreProvider.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("firestore close: %w", err))
		}
	}
	return errors.Join(errs...)
}

func buildSigner(cfg config.StorageConfig) (platformstorage.Signer, error) {
	if key := strings.TrimSpace(cfg.SignerKey); key != "" {
		signer, err := platformstorage.NewServiceAccountSignerFromJSON([]byte(key))
		if err != nil {
			return nil, fmt.Errorf("di: parse signer key: %w", err)
		}
		return signer, nil
	}
	if path := strings.TrimSpace(cfg.SignerKeyFile); path != "" {
		signer, err := platformstorage.NewServiceAccountSignerFromFile(path)
		if err != nil {
			return nil, fmt.Errorf("di: read signer key file: %w", err)
		}
		return signer, nil
	}
	return nil, errors.New("di: storage signer key is required")
}

func buildHealthRepository(firestoreClient *firestore.Client, storageClient *gcs.Client, bucket string) (repositories.HealthRepository, error) {
	checks := make([]repositories.DependencyCheck, 0, 2)
	if firestoreClient != nil {
		checks = append(checks, repositories.DependencyCheck{
			Name:    "firestore",
			Timeout: 1500 * time.Millisecond,
			Check: func(ctx context.Context) error {
				_, err := firestoreClient.Collections(ctx).Next()
				if errors.Is(err, iterator.Done) {
					return nil
				}
				return err
			},
		})
	}
	if storageClient != nil && strings.TrimSpace(bucket) != "" {
		handle := storageClient.Bucket(bucket)
		checks = append(checks, repositories.DependencyCheck{
			Name:    "storage",
			Timeout: 1500 * time.Millisecond,
			Check: func(ctx context.Context) error {
				_, err := handle.Attrs(ctx)
				return err
			},
		})
	}
	return repositories.NewDependencyHealthRepository(checks)
}

func zapEventLogger(logger *zap.Logger) func(ctx context.Context, event string, fields map[string]any) {
	return func(_ context.Context, event string, fields map[string]any) {
		zFields := make([]zap.Field, 0, len(fields))
		for k, v := range fields {
			zFields = append(zFields, zap.Any(k, v))
		}
		logger.Info(event, zFields...)
	}
}
