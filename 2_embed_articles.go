package newsgeo

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log"
	"math"

	_ "github.com/mattn/go-sqlite3"
	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/spf13/cobra"
)

var EmbedArticlesCmd = &cobra.Command{
	Use:   "embed-articles",
	Short: "Generate embeddings for all articles",
	Run: func(cmd *cobra.Command, args []string) {
		if err := embedAllArticles(cmd.Context()); err != nil {
			log.Printf("Failed to embed articles: %v", err)
			return
		}
		log.Println("Article embedding complete.")
	},
}

// embedAllArticles generates and caches embeddings for every input article.
// Embeddings are keyed by article id plus a text hash, so re-runs only pay
// for new or changed articles and produce identical vectors otherwise.
func embedAllArticles(ctx context.Context) error {
	articles, err := LoadArticles(ArticlesFile)
	if err != nil {
		return fmt.Errorf("failed to load articles: %w", err)
	}

	db, err := initEmbeddingDB(EmbeddingsDB)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Printf("Failed to close database: %v", err)
		}
	}()

	if Config.OpenAIAPIKey == "" {
		return fmt.Errorf("OPENAI_API_KEY is not set")
	}
	client := openai.NewClient(option.WithAPIKey(Config.OpenAIAPIKey))

	for _, article := range articles {
		hash := textHash(article.Text)

		cached, err := embeddingExists(db, article.ID, hash)
		if err != nil {
			return fmt.Errorf("failed to check existing embedding: %w", err)
		}
		if cached {
			continue
		}

		embedding, err := generateEmbedding(ctx, client, article.Text)
		if err != nil {
			return fmt.Errorf("failed to generate embedding for article %s: %w", article.ID, err)
		}

		if err := saveEmbedding(db, article.ID, hash, embedding); err != nil {
			return fmt.Errorf("failed to save embedding: %w", err)
		}

		log.Printf("Generated embedding for article: %s", article.ID)
	}

	return nil
}

// initEmbeddingDB initializes the SQLite database for embeddings
func initEmbeddingDB(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}

	createTableSQL := `
	CREATE TABLE IF NOT EXISTS embeddings (
		article_id TEXT PRIMARY KEY,
		text_hash TEXT NOT NULL,
		embedding_json TEXT NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	`

	if _, err := db.Exec(createTableSQL); err != nil {
		if err := db.Close(); err != nil {
			log.Printf("Failed to close database: %v", err)
		}
		return nil, err
	}

	return db, nil
}

// embeddingExists checks whether a current embedding is already cached for
// the article. A stale hash means the text changed and must be re-embedded.
func embeddingExists(db *sql.DB, articleID, hash string) (bool, error) {
	var storedHash string
	err := db.QueryRow("SELECT text_hash FROM embeddings WHERE article_id = ?", articleID).Scan(&storedHash)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return storedHash == hash, nil
}

// generateEmbedding calls the OpenAI API to embed one article text.
func generateEmbedding(ctx context.Context, client openai.Client, text string) ([]float64, error) {
	embedding, err := client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Input: openai.EmbeddingNewParamsInputUnion{
			OfString: openai.String(text),
		},
		Model:          openai.EmbeddingModelTextEmbedding3Large,
		EncodingFormat: openai.EmbeddingNewParamsEncodingFormatFloat,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to call OpenAI API: %w", err)
	}

	if len(embedding.Data) == 0 {
		return nil, fmt.Errorf("no embedding data in response")
	}

	return embedding.Data[0].Embedding, nil
}

// saveEmbedding stores an embedding, replacing any stale entry for the id.
func saveEmbedding(db *sql.DB, articleID, hash string, embedding []float64) error {
	embeddingJSON, err := json.Marshal(embedding)
	if err != nil {
		return fmt.Errorf("failed to marshal embedding: %w", err)
	}

	insertSQL := `
	INSERT OR REPLACE INTO embeddings (article_id, text_hash, embedding_json)
	VALUES (?, ?, ?)
	`

	if _, err := db.Exec(insertSQL, articleID, hash, string(embeddingJSON)); err != nil {
		return fmt.Errorf("failed to insert embedding: %w", err)
	}

	return nil
}

// LoadEmbeddings returns embeddings aligned with the article slice, row i
// belonging to articles[i]. Missing articles are an explicit error: the
// embedding stage must run first.
func LoadEmbeddings(db *sql.DB, articles []Article) ([][]float64, error) {
	embeddings := make([][]float64, len(articles))

	for i, article := range articles {
		var embeddingJSON string
		err := db.QueryRow("SELECT embedding_json FROM embeddings WHERE article_id = ?", article.ID).Scan(&embeddingJSON)
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("no embedding for article %s; run embed-articles first", article.ID)
		}
		if err != nil {
			return nil, err
		}

		if err := json.Unmarshal([]byte(embeddingJSON), &embeddings[i]); err != nil {
			return nil, fmt.Errorf("failed to parse embedding for %s: %w", article.ID, err)
		}
	}

	return embeddings, nil
}

// NormalizeEmbeddings applies L2 normalization, returning new vectors.
// Normalized embeddings keep cosine distances in [0,1] in practice.
func NormalizeEmbeddings(embeddings [][]float64) [][]float64 {
	normalized := make([][]float64, len(embeddings))

	for i, embedding := range embeddings {
		norm := 0.0
		for _, val := range embedding {
			norm += val * val
		}
		norm = math.Sqrt(norm)

		vec := make([]float64, len(embedding))
		if norm > 0 {
			for j, val := range embedding {
				vec[j] = val / norm
			}
		} else {
			copy(vec, embedding)
		}
		normalized[i] = vec
	}

	return normalized
}

// textHash produces the cache key component for an article's text.
func textHash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:8])
}
