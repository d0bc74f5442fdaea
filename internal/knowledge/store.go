package knowledge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"sort"
	"sync"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/philippgille/chromem-go"

	"github.com/shaiso/AgentFlow/internal/domain"
)

// DefaultStoreID — коллекция, в которой ищет запрос без VectorStoreIDs.
const DefaultStoreID = "default"

// Ошибки базы знаний.
var (
	// ErrNoEmbeddingFunc — не задана функция эмбеддингов.
	ErrNoEmbeddingFunc = errors.New("embedding function is required")

	// ErrEmptyQuery — пустой текст запроса.
	ErrEmptyQuery = errors.New("knowledge query is empty")
)

// Document — документ для загрузки в коллекцию.
type Document struct {
	ID       string
	Content  string
	Source   string
	Metadata map[string]string
}

// Config — конфигурация Store.
type Config struct {
	// Path — каталог для хранения коллекций. Пусто — только память.
	Path string

	// Compress — gzip при сохранении на диск.
	Compress bool

	// Embed — функция эмбеддингов для документов и запросов.
	Embed chromem.EmbeddingFunc

	Logger *slog.Logger
}

// EmbeddingFromEnv создаёт функцию эмбеддингов OpenAI-совместимого API
// из LLM_BASE_URL, LLM_API_KEY и EMBEDDING_MODEL.
func EmbeddingFromEnv() chromem.EmbeddingFunc {
	baseURL := os.Getenv("LLM_BASE_URL")
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	model := os.Getenv("EMBEDDING_MODEL")
	if model == "" {
		model = string(chromem.EmbeddingModelOpenAI3Small)
	}
	return chromem.NewEmbeddingFuncOpenAICompat(baseURL, os.Getenv("LLM_API_KEY"), model, nil)
}

// Store — база знаний на chromem-go.
//
// Каждый vector store — коллекция chromem. Поиск идёт по всем коллекциям
// запроса, результаты объединяются и сортируются по близости.
// Реализует steps.KnowledgeSearcher.
type Store struct {
	db     *chromem.DB
	embed  chromem.EmbeddingFunc
	logger *slog.Logger

	mu          sync.RWMutex
	collections map[string]*chromem.Collection
}

// NewStore создаёт Store.
func NewStore(cfg Config) (*Store, error) {
	if cfg.Embed == nil {
		return nil, ErrNoEmbeddingFunc
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	db := chromem.NewDB()
	if cfg.Path != "" {
		if err := os.MkdirAll(cfg.Path, 0o755); err != nil {
			return nil, fmt.Errorf("create knowledge dir: %w", err)
		}
		persistent, err := chromem.NewPersistentDB(cfg.Path, cfg.Compress)
		if err != nil {
			return nil, fmt.Errorf("open knowledge db: %w", err)
		}
		db = persistent
		logger.Info("knowledge store opened", "path", cfg.Path, "collections", len(db.ListCollections()))
	}

	return &Store{
		db:          db,
		embed:       cfg.Embed,
		logger:      logger,
		collections: make(map[string]*chromem.Collection),
	}, nil
}

// collection возвращает коллекцию. create — создавать ли отсутствующую.
func (s *Store) collection(name string, create bool) (*chromem.Collection, error) {
	s.mu.RLock()
	col, ok := s.collections[name]
	s.mu.RUnlock()
	if ok {
		return col, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if col, ok := s.collections[name]; ok {
		return col, nil
	}

	if !create {
		col = s.db.GetCollection(name, s.embed)
		if col == nil {
			return nil, nil
		}
	} else {
		var err error
		col, err = s.db.GetOrCreateCollection(name, nil, s.embed)
		if err != nil {
			return nil, fmt.Errorf("get or create collection %q: %w", name, err)
		}
	}

	s.collections[name] = col
	return col, nil
}

// AddDocuments добавляет документы в коллекцию storeID.
// Документы без ID получают UUID.
func (s *Store) AddDocuments(ctx context.Context, storeID string, docs []Document) error {
	if storeID == "" {
		storeID = DefaultStoreID
	}
	col, err := s.collection(storeID, true)
	if err != nil {
		return err
	}

	batch := make([]chromem.Document, 0, len(docs))
	for _, d := range docs {
		id := d.ID
		if id == "" {
			id = uuid.NewString()
		}
		meta := make(map[string]string, len(d.Metadata)+1)
		for k, v := range d.Metadata {
			meta[k] = v
		}
		if d.Source != "" {
			meta["source"] = d.Source
		}
		batch = append(batch, chromem.Document{ID: id, Content: d.Content, Metadata: meta})
	}

	if err := col.AddDocuments(ctx, batch, runtime.NumCPU()); err != nil {
		return fmt.Errorf("add documents to %q: %w", storeID, err)
	}
	return nil
}

// Count возвращает число документов в коллекции.
func (s *Store) Count(storeID string) int {
	col, err := s.collection(storeID, false)
	if err != nil || col == nil {
		return 0
	}
	return col.Count()
}

// SearchKnowledge ищет фрагменты, близкие к запросу.
//
// Результаты с близостью ниже MinScore отбрасываются; возвращается не
// больше TopK фрагментов. TotalTokens — оценка токенов эмбеддинга запроса.
func (s *Store) SearchKnowledge(ctx context.Context, q domain.KnowledgeQuery) (*domain.KnowledgeResult, error) {
	if q.Query == "" {
		return nil, ErrEmptyQuery
	}
	topK := q.TopK
	if topK <= 0 {
		topK = 5
	}
	storeIDs := q.VectorStoreIDs
	if len(storeIDs) == 0 {
		storeIDs = []string{DefaultStoreID}
	}

	embedding, err := s.embed(ctx, q.Query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	var chunks []domain.KnowledgeChunk
	for _, id := range storeIDs {
		col, err := s.collection(id, false)
		if err != nil {
			return nil, err
		}
		if col == nil {
			s.logger.Warn("vector store not found", "store_id", id)
			continue
		}

		n := min(topK, col.Count())
		if n == 0 {
			continue
		}

		results, err := col.QueryEmbedding(ctx, embedding, n, nil, nil)
		if err != nil {
			return nil, fmt.Errorf("query %q: %w", id, err)
		}
		for _, r := range results {
			score := float64(r.Similarity)
			if score < q.MinScore {
				continue
			}
			chunks = append(chunks, domain.KnowledgeChunk{
				Content: r.Content,
				Score:   score,
				Source:  r.Metadata["source"],
			})
		}
	}

	sort.SliceStable(chunks, func(i, j int) bool {
		return chunks[i].Score > chunks[j].Score
	})
	if len(chunks) > topK {
		chunks = chunks[:topK]
	}

	return &domain.KnowledgeResult{
		Chunks:      chunks,
		TotalTokens: estimateTokens(q.Query),
	}, nil
}

// estimateTokens — грубая оценка: около четырёх символов на токен.
func estimateTokens(s string) int {
	n := utf8.RuneCountInString(s)
	if n == 0 {
		return 0
	}
	return (n + 3) / 4
}
