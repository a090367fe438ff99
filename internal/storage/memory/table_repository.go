package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/kimcharlie25/K-inasal/internal/domain"
)

// tableRepositoryInMemory — in-memory реализация TableRepository.
type tableRepositoryInMemory struct {
	mu     sync.Mutex
	items  map[int64]domain.Table
	nextID int64
	now    func() time.Time
}

// NewTableRepository возвращает in-memory репозиторий столов.
func NewTableRepository() domain.TableRepository {
	return &tableRepositoryInMemory{
		items:  make(map[int64]domain.Table),
		nextID: 1,
		now:    time.Now,
	}
}

// List возвращает столы по возрастанию номера.
func (r *tableRepositoryInMemory) List(ctx context.Context) ([]domain.Table, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	result := make([]domain.Table, 0, len(r.items))
	for _, table := range r.items {
		result = append(result, table)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })

	return result, nil
}

// Add создаёт стол со следующим порядковым номером и QR-ссылкой на него.
func (r *tableRepositoryInMemory) Add(ctx context.Context, baseURL string) (domain.Table, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := r.nextID
	r.nextID++

	table := domain.Table{
		ID:        id,
		Name:      fmt.Sprintf("Table %d", id),
		QRURL:     fmt.Sprintf("%s/?table=%d", baseURL, id),
		CreatedAt: r.now().UTC(),
	}
	r.items[id] = table

	return table, nil
}

// Delete удаляет стол или возвращает ErrTableNotFound.
func (r *tableRepositoryInMemory) Delete(ctx context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.items[id]; !ok {
		return domain.ErrTableNotFound
	}
	delete(r.items, id)
	return nil
}

var _ domain.TableRepository = (*tableRepositoryInMemory)(nil)
