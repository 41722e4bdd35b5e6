package conversations

import (
	"context"
	"testing"

	"github.com/bourracho/chat-registry/internal/config"
	"github.com/stretchr/testify/assert"
)

func TestStoreContextCarriesRegistryConfig(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.MongoUsername = "bourracho"
	cfg.MongoPassword = "secret"
	r := &Registry{opts: OptionsFromConfig(&cfg, nil)}

	got := config.FromContext(r.storeContext(context.Background()))
	assert.Same(t, &cfg, got)

	other := config.DefaultConfig()
	ctx := config.WithContext(context.Background(), &other)
	assert.Same(t, &other, config.FromContext(r.storeContext(ctx)))

	bare := &Registry{}
	assert.Nil(t, config.FromContext(bare.storeContext(context.Background())))
}
