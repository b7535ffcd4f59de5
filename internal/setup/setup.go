// Package setup builds the shared components of the worker and the server
// from environment variables.
package setup

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/OFFIS-RIT/lexgraph/backend/internal/storage"
	"github.com/OFFIS-RIT/lexgraph/backend/internal/util"
	"github.com/OFFIS-RIT/lexgraph/backend/pkg/ai"
	oai "github.com/OFFIS-RIT/lexgraph/backend/pkg/ai/ollama"
	gai "github.com/OFFIS-RIT/lexgraph/backend/pkg/ai/openai"
	"github.com/OFFIS-RIT/lexgraph/backend/pkg/checkpoint"
	"github.com/OFFIS-RIT/lexgraph/backend/pkg/graph"
	"github.com/OFFIS-RIT/lexgraph/backend/pkg/loader"
	fsloader "github.com/OFFIS-RIT/lexgraph/backend/pkg/loader/fs"
	s3loader "github.com/OFFIS-RIT/lexgraph/backend/pkg/loader/s3"
	"github.com/OFFIS-RIT/lexgraph/backend/pkg/logger"
	"github.com/OFFIS-RIT/lexgraph/backend/pkg/logger/console"
	"github.com/OFFIS-RIT/lexgraph/backend/pkg/store/neo4j"

	"github.com/redis/go-redis/v9"
)

// Logger initializes the global logger from DEBUG and LOG_FORMAT.
func Logger(prefix string) {
	logger.Init(console.NewConsoleLogger(console.ConsoleLoggerParams{
		Debug:  util.GetEnvBool("DEBUG", false),
		Prefix: prefix,
		JSON:   strings.EqualFold(util.GetEnvString("LOG_FORMAT", "text"), "json"),
	}))
}

// AIClient returns the client selected by AI_ADAPTER. Anything other than
// "ollama" uses the OpenAI compatible client.
func AIClient() (ai.GraphAIClient, error) {
	maxReq := int64(util.GetEnvInt("AI_PARALLEL_REQ", 1))
	timeout := util.GetEnvInt("AI_TIMEOUT_MIN", 10)
	dim := util.GetEnvInt("AI_EMBED_DIM", 0)

	switch strings.ToLower(util.GetEnvString("AI_ADAPTER", "ollama")) {
	case "ollama":
		client, err := oai.NewGraphOllamaClient(oai.NewGraphOllamaClientParams{
			EmbeddingModel:  util.GetEnvString("AI_EMBED_MODEL", "nomic-embed-text"),
			ChatModel:       util.GetEnvString("AI_CHAT_MODEL", "mistral"),
			ExtractionModel: util.GetEnv("AI_EXTRACT_MODEL"),
			Dimensions:      dim,

			BaseURL: util.GetEnv("AI_CHAT_URL"),
			ApiKey:  util.GetEnv("AI_CHAT_KEY"),

			MaxConcurrentRequests: maxReq,
			Timeout:               timeout,
		})
		if err != nil {
			return nil, fmt.Errorf("could not create ollama client: %w", err)
		}
		return client, nil
	default:
		return gai.NewGraphOpenAIClient(gai.NewGraphOpenAIClientParams{
			EmbeddingModel:  util.GetEnv("AI_EMBED_MODEL"),
			ChatModel:       util.GetEnv("AI_CHAT_MODEL"),
			ExtractionModel: util.GetEnv("AI_EXTRACT_MODEL"),
			Dimensions:      dim,

			EmbeddingURL: util.GetEnv("AI_EMBED_URL"),
			EmbeddingKey: util.GetEnv("AI_EMBED_KEY"),
			ChatURL:      util.GetEnv("AI_CHAT_URL"),
			ChatKey:      util.GetEnv("AI_CHAT_KEY"),

			MaxConcurrentRequests: maxReq,
			Timeout:               timeout,
		}), nil
	}
}

// GraphStore returns the Neo4j graph store. It does not check connectivity.
func GraphStore() (*neo4j.GraphStorage, error) {
	exec, err := neo4j.NewExecutor(
		util.GetEnvString("NEO4J_URI", "bolt://localhost:7687"),
		util.GetEnvString("NEO4J_USER", "neo4j"),
		util.GetEnv("NEO4J_PASSWORD"),
		util.GetEnvString("NEO4J_DATABASE", "neo4j"),
	)
	if err != nil {
		return nil, err
	}
	return neo4j.NewGraphStorage(exec), nil
}

// Policy loads the entity normalization policy from ENTITY_POLICY_FILE.
func Policy() (graph.NormalizationPolicy, error) {
	return graph.LoadNormalizationPolicy(util.GetEnv("ENTITY_POLICY_FILE"))
}

// Objects hands out one lazily created S3 client to every component that
// needs it.
type Objects struct {
	once   sync.Once
	client storage.API
	err    error
}

func (o *Objects) Client(ctx context.Context) (storage.API, error) {
	o.once.Do(func() {
		o.client, o.err = storage.NewS3Client(ctx)
	})
	return o.client, o.err
}

func (o *Objects) Bucket() (string, error) {
	bucket := util.GetEnv("AWS_BUCKET")
	if bucket == "" {
		return "", fmt.Errorf("AWS_BUCKET is not set")
	}
	return bucket, nil
}

// Checkpoint returns the store selected by CHECKPOINT_BACKEND.
func Checkpoint(ctx context.Context, objects *Objects) (checkpoint.Store, error) {
	backend := strings.ToLower(util.GetEnvString("CHECKPOINT_BACKEND", "file"))
	switch backend {
	case "file":
		return checkpoint.NewFileStore(util.GetEnvString("CHECKPOINT_FILE", "progress.json")), nil
	case "redis":
		client, err := Redis()
		if err != nil {
			return nil, err
		}
		return checkpoint.NewRedisStore(client, util.GetEnvString("CHECKPOINT_REDIS_KEY", "lexgraph:checkpoint")), nil
	case "s3":
		client, err := objects.Client(ctx)
		if err != nil {
			return nil, err
		}
		bucket, err := objects.Bucket()
		if err != nil {
			return nil, err
		}
		return checkpoint.NewS3Store(client, bucket, util.GetEnvString("CHECKPOINT_S3_KEY", "checkpoints/progress.json")), nil
	}
	return nil, fmt.Errorf("unknown checkpoint backend %q", backend)
}

// Redis connects to REDIS_URL.
func Redis() (*redis.Client, error) {
	opts, err := redis.ParseURL(util.GetEnvString("REDIS_URL", "redis://localhost:6379/0"))
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return redis.NewClient(opts), nil
}

// ChunkSource returns the source selected by CHUNKS_BACKEND.
func ChunkSource(ctx context.Context, objects *Objects) (loader.ChunkSource, error) {
	backend := strings.ToLower(util.GetEnvString("CHUNKS_BACKEND", "fs"))
	switch backend {
	case "fs":
		return fsloader.NewDirChunkSource(util.GetEnvString("CHUNKS_DIR", "chunks")), nil
	case "s3":
		client, err := objects.Client(ctx)
		if err != nil {
			return nil, err
		}
		bucket, err := objects.Bucket()
		if err != nil {
			return nil, err
		}
		return s3loader.NewBucketChunkSource(client, bucket, util.GetEnvString("CHUNKS_PREFIX", "chunks")), nil
	}
	return nil, fmt.Errorf("unknown chunk backend %q", backend)
}
