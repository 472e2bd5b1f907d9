package node

import (
	"crypto/rand"
	"encoding/hex"
	"io"
	"os"
	"path/filepath"

	"github.com/gbrlsnchs/jwt/v3"
	"golang.org/x/xerrors"

	"github.com/filecoin-project/go-jsonrpc/auth"

	"github.com/svdb-project/svdb/api"
)

const (
	secretFile = "jwt-secret"
	tokenFile  = "token"
)

type jwtPayload struct {
	Allow []auth.Permission
}

// apiSecret loads the repo's HMAC secret, generating one on first run. A
// token carrying all permissions is written next to it for the cli.
func apiSecret(repoDir string) (*jwt.HMACSHA, error) {
	secretPath := filepath.Join(repoDir, secretFile)

	encoded, err := os.ReadFile(secretPath)
	if os.IsNotExist(err) {
		log.Warn("Generating new API secret")

		sk, err := io.ReadAll(io.LimitReader(rand.Reader, 32))
		if err != nil {
			return nil, err
		}
		encoded = []byte(hex.EncodeToString(sk))
		if err := os.WriteFile(secretPath, encoded, 0600); err != nil {
			return nil, xerrors.Errorf("writing API secret: %w", err)
		}

		alg := jwt.NewHS256(sk)
		cliToken, err := jwt.Sign(&jwtPayload{Allow: api.AllPermissions}, alg)
		if err != nil {
			return nil, err
		}
		if err := os.WriteFile(filepath.Join(repoDir, tokenFile), cliToken, 0600); err != nil {
			return nil, xerrors.Errorf("writing API token: %w", err)
		}
		return alg, nil
	} else if err != nil {
		return nil, xerrors.Errorf("reading API secret: %w", err)
	}

	sk, err := hex.DecodeString(string(encoded))
	if err != nil {
		return nil, xerrors.Errorf("malformed API secret at %s: %w", secretPath, err)
	}
	return jwt.NewHS256(sk), nil
}
