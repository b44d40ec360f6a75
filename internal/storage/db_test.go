package db

import (
	"math"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestColumnList(t *testing.T) {
	plain := columnList("")
	assert.True(t, strings.HasPrefix(plain, "id, name, eval_type"))
	assert.True(t, strings.HasSuffix(plain, "status, created_at"))

	aliased := columnList("er")
	assert.True(t, strings.HasPrefix(aliased, "er.id, er.name"))
	assert.Equal(t, len(runColumns), strings.Count(aliased, "er."))
}

func TestUUIDRoundTrip(t *testing.T) {
	const id = "7c9e6679-7425-40de-944b-e07fc1f90ae7"

	assert.Equal(t, id, fromUUID(toUUID(id)))
	assert.False(t, toUUID("run-1").Valid)
	assert.Empty(t, fromUUID(toUUID("")))
}

func TestSanitizeUTF8(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "empty", in: "", want: ""},
		{name: "valid", in: "Tõnu", want: "Tõnu"},
		{name: "invalid byte", in: "bad\xffvalue", want: "badvalue"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SanitizeUTF8(tt.in))
		})
	}
}

func TestSafeIntToInt32(t *testing.T) {
	assert.Equal(t, int32(42), safeIntToInt32(42))
	assert.Equal(t, int32(math.MaxInt32), safeIntToInt32(math.MaxInt32+1))
	assert.Equal(t, int32(math.MinInt32), safeIntToInt32(math.MinInt32-1))
}

func TestPoolOptionsWithDefaults(t *testing.T) {
	tests := []struct {
		name string
		in   PoolOptions
		want PoolOptions
	}{
		{name: "zero", in: PoolOptions{}, want: DefaultPoolOptions()},
		{
			name: "min above max",
			in:   PoolOptions{MaxConns: 1, MinConns: 5},
			want: PoolOptions{
				MaxConns:          1,
				MinConns:          1,
				MaxConnIdleTime:   defaultMaxConnIdleTime,
				MaxConnLifetime:   defaultMaxConnLifetime,
				HealthCheckPeriod: defaultHealthCheckPeriod,
			},
		},
		{
			name: "explicit",
			in:   PoolOptions{MaxConns: 20, MinConns: 4, MaxConnIdleTime: time.Minute, MaxConnLifetime: 2 * time.Hour, HealthCheckPeriod: 5 * time.Second},
			want: PoolOptions{MaxConns: 20, MinConns: 4, MaxConnIdleTime: time.Minute, MaxConnLifetime: 2 * time.Hour, HealthCheckPeriod: 5 * time.Second},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.in.withDefaults())
		})
	}
}
