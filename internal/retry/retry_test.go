package retry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFixed_Delay(t *testing.T) {
	tests := []struct {
		name    string
		policy  Fixed
		attempt int
		want    time.Duration
	}{
		{"zero interval", Fixed(0), 1, 0},
		{"first attempt", Fixed(time.Second), 1, time.Second},
		{"later attempt", Fixed(time.Second), 7, time.Second},
		{"negative interval", Fixed(-time.Second), 1, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.policy.Delay(tt.attempt))
		})
	}
}

func TestExponential_Delay(t *testing.T) {
	tests := []struct {
		name string
		want func(t *testing.T, p *Exponential)
	}{
		{
			name: "should apply defaults",
			want: func(t *testing.T, p *Exponential) {
				d := NewExponential(0, 0)
				assert.Equal(t, 100*time.Millisecond, d.Base)
				assert.Equal(t, 30*time.Second, d.Max)
			},
		},
		{
			name: "should stay within jitter of the first delay",
			want: func(t *testing.T, p *Exponential) {
				for range 50 {
					d := p.Delay(1)
					assert.GreaterOrEqual(t, d, 75*time.Millisecond)
					assert.LessOrEqual(t, d, 125*time.Millisecond)
				}
			},
		},
		{
			name: "should grow exponentially",
			want: func(t *testing.T, p *Exponential) {
				for range 50 {
					d := p.Delay(3)
					assert.GreaterOrEqual(t, d, 300*time.Millisecond)
					assert.LessOrEqual(t, d, 500*time.Millisecond)
				}
			},
		},
		{
			name: "should cap at max delay",
			want: func(t *testing.T, p *Exponential) {
				assert.LessOrEqual(t, p.Delay(20), 2*time.Second)
				assert.LessOrEqual(t, p.Delay(1000), 2*time.Second)
				assert.Greater(t, p.Delay(1000), time.Duration(0))
			},
		},
		{
			name: "should treat non-positive attempts as the first",
			want: func(t *testing.T, p *Exponential) {
				assert.LessOrEqual(t, p.Delay(0), 125*time.Millisecond)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.want(t, NewExponential(100*time.Millisecond, 2*time.Second))
		})
	}
}

func TestSleep(t *testing.T) {
	t.Run("elapses", func(t *testing.T) {
		assert.True(t, Sleep(context.Background(), time.Millisecond))
	})

	t.Run("zero delay", func(t *testing.T) {
		assert.True(t, Sleep(context.Background(), 0))
	})

	t.Run("canceled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		assert.False(t, Sleep(ctx, time.Hour))
		assert.False(t, Sleep(ctx, 0))
	})
}
