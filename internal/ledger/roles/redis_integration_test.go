//go:build integration

package roles

import (
	"context"
	"testing"

	"github.com/stretchr/testify/suite"

	"aidledger/pkg/testutil/containers"
)

func TestRedisStore(t *testing.T) {
	container := containers.NewRedisContainer(t)
	suite.Run(t, &StoreSuite{newStore: func() Store {
		if err := container.FlushAll(context.Background()); err != nil {
			t.Fatalf("flush redis: %v", err)
		}
		return NewRedisStore(container.Client)
	}})
}
