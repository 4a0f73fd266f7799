package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
)

func TestDefaults(t *testing.T) {
	v := viper.New()
	setDefaults(v)
	cfg := fromViper(v)

	assert.Equal(t, EnvDevelopment, cfg.Env)
	assert.Equal(t, "/api/v1", cfg.APIPrefix)
	assert.Equal(t, 7*24*time.Hour, cfg.Registration.IndividualOrderTTL)
	assert.Equal(t, 48*time.Hour, cfg.Registration.GroupOrderTTL)
	assert.Equal(t, 1, cfg.Reconciliation.Workers)
	assert.True(t, cfg.Database.AutoMigrate)
	assert.Nil(t, cfg.CORS.AllowedOrigins)
}

func TestOverrides(t *testing.T) {
	v := viper.New()
	setDefaults(v)
	v.Set("PAYMENT_ORDER_GROUP_TTL", "12h")
	v.Set("PAYMENT_ORDER_INDIVIDUAL_TTL", "bogus")
	v.Set("ALLOWED_ORIGINS", "http://a.test, ,http://b.test")
	v.Set("RECONCILE_WORKERS", 0)
	cfg := fromViper(v)

	assert.Equal(t, 12*time.Hour, cfg.Registration.GroupOrderTTL)
	assert.Equal(t, 7*24*time.Hour, cfg.Registration.IndividualOrderTTL)
	assert.Equal(t, []string{"http://a.test", "http://b.test"}, cfg.CORS.AllowedOrigins)
	assert.Equal(t, 1, cfg.Reconciliation.Workers)
}
