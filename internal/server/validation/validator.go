// Package validation turns raw upstream entries into server versions.
//
// Only identity, URL and enum constraints reject an entry. Optional fields
// of the wrong type are dropped to their zero value so one sloppy field does
// not cost the whole record.
package validation

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/dmitrijs2005/regmirror/internal/common"
	"github.com/dmitrijs2005/regmirror/internal/server/models"
	"github.com/go-playground/validator/v10"
)

// Official metadata keys, newest first.
var officialMetaKeys = []string{
	"io.modelcontextprotocol.registry/official",
	"registry/official",
}

// Names are used as the cursor prefix, so ':' and whitespace are reserved.
var serverNameRe = regexp.MustCompile(`^[^\s:]+$`)

type remote struct {
	URL string `validate:"required,url"`
}

type record struct {
	Name          string   `validate:"required,max=200,servername"`
	Version       string   `validate:"required,max=255"`
	WebsiteURL    string   `validate:"omitempty,url"`
	RepositoryURL string   `validate:"omitempty,url"`
	Status        string   `validate:"oneof=active deprecated deleted"`
	Remotes       []remote `validate:"dive"`
}

// Validator checks upstream entries. It is safe for concurrent use.
type Validator struct {
	v *validator.Validate
}

// rules are the custom tags used by record.
var rules = map[string]validator.Func{
	"servername": func(fl validator.FieldLevel) bool {
		return serverNameRe.MatchString(fl.Field().String())
	},
}

// New returns a Validator with the custom rules registered. It panics if a
// rule cannot be registered, since every record would be rejected otherwise.
func New() *Validator {
	v, err := newValidator(rules)
	if err != nil {
		panic(err)
	}
	return v
}

func newValidator(custom map[string]validator.Func) (*Validator, error) {
	v := validator.New(validator.WithRequiredStructEnabled())
	for tag, fn := range custom {
		if err := v.RegisterValidation(tag, fn); err != nil {
			return nil, fmt.Errorf("register validation %q: %w", tag, err)
		}
	}
	return &Validator{v: v}, nil
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", common.ErrInvalidRecord, fmt.Sprintf(format, args...))
}

// Validate decodes raw into a server version. Rejections wrap
// common.ErrInvalidRecord.
func (val *Validator) Validate(raw json.RawMessage) (*models.ServerVersion, error) {
	var entry map[string]json.RawMessage
	if err := json.Unmarshal(raw, &entry); err != nil || entry == nil {
		return nil, invalid("entry is not a JSON object")
	}

	var server map[string]json.RawMessage
	if err := json.Unmarshal(entry["server"], &server); err != nil || server == nil {
		return nil, invalid("server is not a JSON object")
	}

	sv := &models.ServerVersion{}
	rec := record{}

	var err error
	if sv.Name, err = requiredString(server, "name"); err != nil {
		return nil, err
	}
	if sv.Version, err = requiredString(server, "version"); err != nil {
		return nil, err
	}
	rec.Name, rec.Version = sv.Name, sv.Version

	sv.Description = optionalString(server, "description")
	sv.WebsiteURL = optionalString(server, "websiteUrl")
	rec.WebsiteURL = sv.WebsiteURL

	if repo := optionalRepository(server["repository"]); repo != nil {
		sv.Repository = repo
		rec.RepositoryURL = repo.URL
	}

	sv.Packages = optionalList(server["packages"])
	sv.Remotes = optionalList(server["remotes"])
	for i, r := range sv.Remotes {
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(r, &obj); err != nil || obj == nil {
			return nil, invalid("remote %d is not a JSON object", i)
		}
		rec.Remotes = append(rec.Remotes, remote{URL: optionalString(obj, "url")})
	}

	sv.PublisherMeta = optionalMeta(server["_meta"])
	sv.ParentRegistryMeta = optionalMeta(entry["_meta"])

	official := officialMeta(entry["_meta"])
	status, err := statusOf(official, server)
	if err != nil {
		return nil, err
	}
	rec.Status = status
	sv.Status = models.Status(status)
	sv.IsLatest = optionalBool(official, "isLatest")
	sv.PublishedAt = optionalTime(official, "publishedAt")

	if err := val.v.Struct(rec); err != nil {
		return nil, invalid("%s", describe(err))
	}
	return sv, nil
}

func describe(err error) string {
	var ve validator.ValidationErrors
	if !errors.As(err, &ve) {
		return err.Error()
	}
	parts := make([]string, 0, len(ve))
	for _, fe := range ve {
		parts = append(parts, fmt.Sprintf("%s fails %q (value %q)", fe.Namespace(), fe.Tag(), fmt.Sprint(fe.Value())))
	}
	return strings.Join(parts, "; ")
}

func requiredString(obj map[string]json.RawMessage, key string) (string, error) {
	raw, ok := obj[key]
	if !ok {
		return "", invalid("missing %s", key)
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", invalid("%s is not a string", key)
	}
	return s, nil
}

func optionalString(obj map[string]json.RawMessage, key string) string {
	var s string
	if raw, ok := obj[key]; ok {
		_ = json.Unmarshal(raw, &s)
	}
	return s
}

func optionalBool(obj map[string]json.RawMessage, key string) bool {
	var b bool
	if raw, ok := obj[key]; ok {
		_ = json.Unmarshal(raw, &b)
	}
	return b
}

func optionalTime(obj map[string]json.RawMessage, key string) *time.Time {
	s := optionalString(obj, key)
	if s == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return nil
	}
	t = t.UTC()
	return &t
}

func optionalList(raw json.RawMessage) models.RawList {
	var l []json.RawMessage
	if err := json.Unmarshal(raw, &l); err != nil {
		return nil
	}
	return l
}

func optionalMeta(raw json.RawMessage) models.Meta {
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil
	}
	return m
}

func optionalRepository(raw json.RawMessage) *models.Repository {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil || obj == nil {
		return nil
	}
	return &models.Repository{
		URL:       optionalString(obj, "url"),
		Source:    optionalString(obj, "source"),
		ID:        optionalString(obj, "id"),
		Subfolder: optionalString(obj, "subfolder"),
	}
}

func officialMeta(raw json.RawMessage) map[string]json.RawMessage {
	var meta map[string]json.RawMessage
	if err := json.Unmarshal(raw, &meta); err != nil {
		return nil
	}
	for _, key := range officialMetaKeys {
		var official map[string]json.RawMessage
		if err := json.Unmarshal(meta[key], &official); err == nil && official != nil {
			return official
		}
	}
	return nil
}

// statusOf reads the status from official metadata, falling back to the
// server object. A missing status means active; a non-string one is rejected.
func statusOf(official, server map[string]json.RawMessage) (string, error) {
	raw, ok := official["status"]
	if !ok {
		raw, ok = server["status"]
	}
	if !ok || string(raw) == "null" {
		return string(models.StatusActive), nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", invalid("status is not a string")
	}
	return s, nil
}
