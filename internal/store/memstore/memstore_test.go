package memstore

import (
	"testing"

	"github.com/roach88/fusionsync/internal/domain"
	"github.com/roach88/fusionsync/internal/store/storetest"
)

func TestStoreConformance(t *testing.T) {
	storetest.Run(t, func(t *testing.T) domain.Store {
		return New()
	})
}
