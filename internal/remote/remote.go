// Package remote implements the Remote/Config Loader (SPEC_FULL.md
// component J): fetching s3:// include bodies for the Directive Parser,
// and selecting a startup rc-profile (shell/shellflags/env defaults) out
// of a .gomkrc.json document via a JMESPath query.
//
// Grounded on friedelschoen-mk/parser.go's parseInclude recursive-include
// shape for how a fetched body re-enters parsing. The rc-profile loader has
// no grounding in original_source (it has no configuration-file, profile,
// or network-fetch concept at all) or in any pack repo's own behavior;
// this component exists to give friedelschoen-mk's own go.mod-listed
// aws-sdk-go and jmespath-go dependencies — both unimported by its actual
// .go files — a real place to be exercised, so the S3 and JMESPath wiring
// below is new code built directly against those libraries' documented
// APIs rather than adapted from an existing call site.
package remote

import (
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/jmespath/go-jmespath"
)

// S3Includer implements parse.RemoteIncluder against a real S3 bucket,
// using the SDK's default credential chain (env vars, shared config,
// instance profile) — no credential management of its own.
type S3Includer struct {
	sess *session.Session
}

// NewS3Includer builds the AWS session up front, from the SDK's default
// configuration; no object is fetched until Fetch is called.
func NewS3Includer() (*S3Includer, error) {
	sess, err := session.NewSessionWithOptions(session.Options{SharedConfigState: session.SharedConfigEnable})
	if err != nil {
		return nil, err
	}
	return &S3Includer{sess: sess}, nil
}

// Fetch downloads the object named by an s3://bucket/key URI.
func (inc *S3Includer) Fetch(uri string) (io.ReadCloser, error) {
	bucket, key, err := parseS3URI(uri)
	if err != nil {
		return nil, err
	}
	svc := s3.New(inc.sess)
	out, err := svc.GetObject(&s3.GetObjectInput{Bucket: aws.String(bucket), Key: aws.String(key)})
	if err != nil {
		return nil, err
	}
	return out.Body, nil
}

// escapeRawStringLiteral escapes profileName for splicing into a JMESPath
// raw string literal ('...'), so a MAKE_PROFILE value containing a quote
// or backslash can't break out of the query expression.
func escapeRawStringLiteral(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `'`, `\'`)
	return s
}

func parseS3URI(raw string) (bucket, key string, err error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", "", fmt.Errorf("malformed s3 URI %q: %w", raw, err)
	}
	if u.Scheme != "s3" || u.Host == "" {
		return "", "", fmt.Errorf("malformed s3 URI %q: expected s3://bucket/key", raw)
	}
	return u.Host, strings.TrimPrefix(u.Path, "/"), nil
}

// RCProfile is one entry of a .gomkrc.json document's "profiles" array
// (SPEC_FULL.md §3's RCProfile record).
type RCProfile struct {
	Name       string            `json:"name"`
	Shell      string            `json:"shell"`
	ShellFlags string            `json:"shellflags"`
	Env        map[string]string `json:"env"`
}

type rcDocument struct {
	Profiles []RCProfile `json:"profiles"`
}

// LoadProfile reads path (a .gomkrc.json document), selects the profile
// named by profileName via a JMESPath query against the profiles array,
// and returns it. ok is false if the file doesn't exist or no profile
// matches; either case is non-fatal (the caller just skips seeding
// Default-origin values from it).
func LoadProfile(path, profileName string) (RCProfile, bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return RCProfile{}, false, nil
		}
		return RCProfile{}, false, err
	}

	var doc rcDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return RCProfile{}, false, fmt.Errorf("%s: %w", path, err)
	}

	// Round-trip through a generic JSON value so jmespath (which works
	// over interface{}, not typed structs) can query the same document.
	var generic interface{}
	if err := json.Unmarshal(data, &generic); err != nil {
		return RCProfile{}, false, fmt.Errorf("%s: %w", path, err)
	}

	expr := fmt.Sprintf("profiles[?name=='%s'] | [0]", escapeRawStringLiteral(profileName))
	result, err := jmespath.Search(expr, generic)
	if err != nil {
		return RCProfile{}, false, fmt.Errorf("%s: jmespath query: %w", path, err)
	}
	if result == nil {
		return RCProfile{}, false, nil
	}

	matched, err := json.Marshal(result)
	if err != nil {
		return RCProfile{}, false, err
	}
	var profile RCProfile
	if err := json.Unmarshal(matched, &profile); err != nil {
		return RCProfile{}, false, err
	}
	return profile, true, nil
}
