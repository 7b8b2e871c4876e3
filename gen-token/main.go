// Command gen-token prints an HS256 token accepted by taskboard when it runs
// with LOCAL_AUTH_MODE=hs256.
package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v4"
	log "github.com/sirupsen/logrus"
)

func main() {
	user := flag.Int64("user", 1, "numeric user id placed in the sub claim")
	ttl := flag.Duration("ttl", time.Hour, "token lifetime")
	audience := flag.String("aud", os.Getenv("AUTH0_AUDIENCE"), "optional audience claim")
	flag.Parse()

	tok, err := localToken(os.Getenv("LOCAL_AUTH_SHARED_SECRET"), *user, *audience, *ttl, time.Now())
	if err != nil {
		log.Fatalf("generate token: %v", err)
	}
	fmt.Print(tok)
}

func localToken(secret string, userID int64, audience string, ttl time.Duration, now time.Time) (string, error) {
	if secret == "" {
		return "", errors.New("LOCAL_AUTH_SHARED_SECRET must be set")
	}
	if userID <= 0 {
		return "", errors.New("user id must be positive")
	}
	claims := jwt.MapClaims{
		"sub": strconv.FormatInt(userID, 10),
		"iat": now.Unix(),
		"exp": now.Add(ttl).Unix(),
	}
	if audience != "" {
		claims["aud"] = audience
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}
