package storage

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/drstein77/groceryweb/internal/models"
)

// MemoryKeeper keeps products in process memory. It backs the service
// when no database is configured; data is lost on restart.
type MemoryKeeper struct {
	mx       sync.RWMutex
	products []models.Product
	nextID   int64
}

func NewMemoryKeeper() *MemoryKeeper {
	return &MemoryKeeper{nextID: 1}
}

func (m *MemoryKeeper) InsertProducts(_ context.Context, products []models.Product) (*models.ProcessResponse, error) {
	m.mx.Lock()
	defer m.mx.Unlock()

	for _, p := range products {
		m.add(p)
	}

	resp := m.stats()
	resp.Imported = len(products)
	return resp, nil
}

func (m *MemoryKeeper) InsertProduct(_ context.Context, p models.Product) (models.Product, error) {
	m.mx.Lock()
	defer m.mx.Unlock()
	return m.add(p), nil
}

func (m *MemoryKeeper) SearchProducts(_ context.Context, term string, limit int) ([]models.Product, error) {
	m.mx.RLock()
	defer m.mx.RUnlock()

	needle := strings.ToLower(term)
	found := make([]models.Product, 0)
	for _, p := range m.products {
		if limit > 0 && len(found) == limit {
			break
		}
		if strings.Contains(strings.ToLower(p.Name), needle) ||
			(p.Category != "" && strings.Contains(strings.ToLower(p.Category), needle)) {
			found = append(found, p)
		}
	}
	return found, nil
}

func (m *MemoryKeeper) GetAllProducts(context.Context) ([]models.Product, error) {
	m.mx.RLock()
	defer m.mx.RUnlock()

	out := make([]models.Product, len(m.products))
	copy(out, m.products)
	return out, nil
}

func (m *MemoryKeeper) Ping(context.Context) bool { return true }

func (m *MemoryKeeper) Close() bool { return true }

// add must be called with the write lock held.
func (m *MemoryKeeper) add(p models.Product) models.Product {
	p.ID = m.nextID
	p.CreatedAt = time.Now().UTC()
	m.nextID++
	m.products = append(m.products, p)
	return p
}

func (m *MemoryKeeper) stats() *models.ProcessResponse {
	resp := &models.ProcessResponse{TotalItems: len(m.products)}
	categories := make(map[string]struct{})
	for _, p := range m.products {
		resp.TotalPrice += p.Price
		if p.Category != "" {
			categories[p.Category] = struct{}{}
		}
	}
	resp.TotalCategories = len(categories)
	return resp
}
