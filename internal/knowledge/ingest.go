package knowledge

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// DefaultChunkSize — размер фрагмента в байтах при загрузке файлов.
const DefaultChunkSize = 1000

// SplitText режет текст на фрагменты не длиннее size байт по границам строк.
// Строка длиннее size попадает во фрагмент целиком. Пустые фрагменты
// отбрасываются.
func SplitText(text string, size int) []string {
	if size <= 0 {
		size = DefaultChunkSize
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if len(text) <= size {
		return []string{text}
	}

	var (
		chunks  []string
		current strings.Builder
	)
	flush := func() {
		if s := strings.TrimSpace(current.String()); s != "" {
			chunks = append(chunks, s)
		}
		current.Reset()
	}

	for _, line := range strings.Split(text, "\n") {
		if current.Len() > 0 && current.Len()+len(line)+1 > size {
			flush()
		}
		current.WriteString(line)
		current.WriteByte('\n')
	}
	flush()

	return chunks
}

// LoadDir загружает в коллекцию storeID все .md и .txt файлы из dir.
// Каждый файл режется SplitText; ID фрагмента — "путь#номер", поэтому
// повторная загрузка перезаписывает документы, а не дублирует их.
// Возвращает число загруженных фрагментов.
func (s *Store) LoadDir(ctx context.Context, storeID, dir string, chunkSize int) (int, error) {
	var docs []Document

	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		switch strings.ToLower(filepath.Ext(path)) {
		case ".md", ".txt":
		default:
			return nil
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			rel = path
		}
		rel = filepath.ToSlash(rel)

		for i, chunk := range SplitText(string(data), chunkSize) {
			docs = append(docs, Document{
				ID:       rel + "#" + strconv.Itoa(i),
				Content:  chunk,
				Source:   rel,
				Metadata: map[string]string{"chunk": strconv.Itoa(i)},
			})
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("walk %s: %w", dir, err)
	}

	if len(docs) == 0 {
		return 0, nil
	}
	if err := s.AddDocuments(ctx, storeID, docs); err != nil {
		return 0, err
	}

	s.logger.Info("knowledge loaded", "store_id", storeID, "dir", dir, "chunks", len(docs))
	return len(docs), nil
}
