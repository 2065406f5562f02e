package chrome

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/vibebrowser/vibe-core/internal/logging"
)

const loginDataFile = "Login Data"

type loginRow struct {
	originURL     string
	username      string
	passwordValue []byte
	dateCreated   int64
	dateModified  int64
}

// ExtractPasswords decrypts the saved logins of profile.
//
// A missing Login Data file or an unobtainable key fails the call. A row
// that cannot be decrypted is logged and skipped.
func (s *Service) ExtractPasswords(ctx context.Context, profile Profile) Result[[]PasswordRecord] {
	started := time.Now()
	log := logging.WithProfile(s.log, profile.Dir())

	res := s.extractPasswords(ctx, profile)
	if !res.Success {
		log.WithField("error", res.Error).Warn("Password extraction failed")
	} else {
		log.WithField("count", len(res.Data)).Info("Extracted Chrome passwords")
	}
	s.record("passwords", res.Success, len(res.Data), started)
	return res
}

func (s *Service) extractPasswords(ctx context.Context, profile Profile) Result[[]PasswordRecord] {
	log := logging.WithProfile(s.log, profile.Dir())

	src := filepath.Join(profile.Path, loginDataFile)
	if !fileExists(src) {
		return failed[[]PasswordRecord](fmt.Sprintf("Login Data file not found for profile %s", profile.Dir()))
	}

	key, err := s.key(ctx)
	if err != nil || len(key) == 0 {
		log.WithError(err).Warn("Could not obtain Chrome encryption key")
		return failed[[]PasswordRecord]("failed to retrieve encryption key")
	}

	tmp, err := s.copyToTemp(src, loginDataCopyPrefix)
	if err != nil {
		return failed[[]PasswordRecord](err.Error())
	}
	defer s.removeCopy(tmp)

	rows, err := readLogins(ctx, tmp)
	if err != nil {
		return failed[[]PasswordRecord](fmt.Sprintf("failed to read logins: %v", err))
	}

	records := make([]PasswordRecord, 0, len(rows))
	legacy, encrypted, undecryptable := 0, 0, 0
	for _, row := range rows {
		if IsV10(row.passwordValue) {
			encrypted++
		} else {
			legacy++
		}
		password, err := DecryptPassword(row.passwordValue, key)
		if err != nil {
			undecryptable++
			log.WithError(err).WithField("url", row.originURL).Warn("Skipping password that failed to decrypt")
			continue
		}

		rec := PasswordRecord{
			ID:          uuid.NewString(),
			URL:         row.originURL,
			Username:    row.username,
			Password:    password,
			Source:      SourceChrome,
			DateCreated: chromeTime(row.dateCreated),
		}
		if modified := chromeTime(row.dateModified); !modified.IsZero() {
			rec.LastModified = &modified
		}
		records = append(records, rec)
	}
	if legacy > 0 {
		log.WithField("count", legacy).Warn("Passed through passwords without v10 marker as plaintext")
	}
	// A key that fails every encrypted row is not worth caching.
	if encrypted > 0 && undecryptable == encrypted {
		s.ForgetKey()
		log.WithField("count", encrypted).Warn("No password decrypted, dropped cached key")
	}

	return succeeded(records)
}

// readLogins queries the non-blacklisted rows of a Login Data copy.
// date_password_modified only exists in newer Chrome versions.
func readLogins(ctx context.Context, path string) ([]loginRow, error) {
	db, err := openReadOnly(path)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	cols, err := tableColumns(db, "logins")
	if err != nil {
		return nil, err
	}
	modifiedCol := "0"
	if cols["date_password_modified"] {
		modifiedCol = "date_password_modified"
	}

	query := fmt.Sprintf(`
		SELECT origin_url, COALESCE(username_value, ''), password_value,
		       COALESCE(date_created, 0), COALESCE(%s, 0)
		FROM logins
		WHERE blacklisted_by_user = 0
		ORDER BY origin_url`, modifiedCol)

	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []loginRow
	for rows.Next() {
		var r loginRow
		if err := rows.Scan(&r.originURL, &r.username, &r.passwordValue, &r.dateCreated, &r.dateModified); err != nil {
			return nil, err
		}
		result = append(result, r)
	}
	return result, rows.Err()
}
