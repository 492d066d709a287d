package password

import (
	"context"
	"fmt"
	"runtime"

	"github.com/sethvargo/go-envconfig"
)

// Argon2idParams controls Argon2id hashing cost.
// MemoryKiB is in KiB as required by argon2.IDKey.
type Argon2idParams struct {
	MemoryKiB   uint32 `env:"MEMORY_KIB, overwrite"`
	Iterations  uint32 `env:"ITERATIONS, overwrite"`
	Parallelism uint8  `env:"PARALLELISM, overwrite"`
	SaltLength  uint32 `env:"SALT_LEN, overwrite"`
	KeyLength   uint32 `env:"KEY_LEN, overwrite"`
}

// Policy controls password validation and anti-DoS boundaries.
type Policy struct {
	MinLength      int  `env:"MIN_LEN, overwrite"`
	MaxLength      int  `env:"MAX_LEN, overwrite"`
	RejectVeryWeak bool `env:"REJECT_VERY_WEAK, overwrite"`
}

// Config is the single configuration surface for this package.
type Config struct {
	Params Argon2idParams `env:", prefix=MART_ARGON2_"`
	Policy Policy         `env:", prefix=MART_PASSWORD_"`
}

// DefaultConfig returns the baseline used when no env overrides are present.
func DefaultConfig() Config {
	// Parallelism follows the host but stays within [1..4] so container limits stay predictable.
	threads := min(max(runtime.NumCPU(), 1), 4)

	return Config{
		Params: Argon2idParams{
			MemoryKiB:   64 * 1024,
			Iterations:  3,
			Parallelism: uint8(threads), // #nosec G115 -- clamped to [1..4] above.
			SaltLength:  16,
			KeyLength:   32,
		},
		Policy: Policy{
			MinLength:      8,
			MaxLength:      256,
			RejectVeryWeak: true,
		},
	}
}

// FromEnv overlays environment variables on DefaultConfig.
//
// Env surface:
//   - MART_PASSWORD_MIN_LEN, MART_PASSWORD_MAX_LEN, MART_PASSWORD_REJECT_VERY_WEAK
//   - MART_ARGON2_MEMORY_KIB, MART_ARGON2_ITERATIONS, MART_ARGON2_PARALLELISM
//   - MART_ARGON2_SALT_LEN, MART_ARGON2_KEY_LEN
func FromEnv(ctx context.Context) (Config, error) {
	cfg := DefaultConfig()
	if err := envconfig.Process(ctx, &cfg); err != nil {
		return Config{}, fmt.Errorf("%w: %w", ErrConfig, err)
	}
	if err := cfg.check(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

type bound struct {
	name     string
	v        uint64
	min, max uint64
}

func (c Config) check() error {
	if c.Policy.MinLength < 1 || c.Policy.MaxLength > 4096 {
		return fmt.Errorf("%w: password length bounds out of range", ErrConfig)
	}
	if c.Policy.MinLength > c.Policy.MaxLength {
		return fmt.Errorf("%w: min_len(%d) > max_len(%d)", ErrConfig, c.Policy.MinLength, c.Policy.MaxLength)
	}

	bounds := []bound{
		{"MART_ARGON2_MEMORY_KIB", uint64(c.Params.MemoryKiB), 8 * 1024, 1024 * 1024},
		{"MART_ARGON2_ITERATIONS", uint64(c.Params.Iterations), 1, 20},
		{"MART_ARGON2_PARALLELISM", uint64(c.Params.Parallelism), 1, 64},
		{"MART_ARGON2_SALT_LEN", uint64(c.Params.SaltLength), 8, 64},
		{"MART_ARGON2_KEY_LEN", uint64(c.Params.KeyLength), 16, 64},
	}
	for _, b := range bounds {
		if b.v < b.min || b.v > b.max {
			return fmt.Errorf("%w: %s out of range [%d..%d]", ErrConfig, b.name, b.min, b.max)
		}
	}
	return nil
}
