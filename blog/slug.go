package blog

import (
	"crypto/rand"
	"errors"
	"strings"

	"gorm.io/gorm"

	"jyurniq/models"
)

const maxSlugLen = 80

var accentMap = map[rune]rune{
	'á': 'a', 'à': 'a', 'ã': 'a', 'â': 'a', 'ä': 'a', 'å': 'a', 'ā': 'a',
	'é': 'e', 'è': 'e', 'ê': 'e', 'ë': 'e', 'ē': 'e',
	'í': 'i', 'ì': 'i', 'î': 'i', 'ï': 'i', 'ī': 'i',
	'ó': 'o', 'ò': 'o', 'õ': 'o', 'ô': 'o', 'ö': 'o', 'ø': 'o', 'ō': 'o',
	'ú': 'u', 'ù': 'u', 'û': 'u', 'ü': 'u', 'ū': 'u',
	'ç': 'c', 'ć': 'c', 'č': 'c',
	'ñ': 'n', 'ń': 'n',
	'ý': 'y', 'ÿ': 'y',
	'ß': 's',
}

// Slugify lower-cases the title, folds common accents and joins the
// remaining alphanumeric runs with single dashes.
func Slugify(title string) string {
	var b strings.Builder
	pendingDash := false

	for _, r := range strings.ToLower(title) {
		if replacement, ok := accentMap[r]; ok {
			r = replacement
		}
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			if pendingDash && b.Len() > 0 {
				b.WriteByte('-')
			}
			pendingDash = false
			b.WriteRune(r)
			continue
		}
		pendingDash = true
	}

	slug := b.String()
	if len(slug) > maxSlugLen {
		slug = strings.TrimRight(slug[:maxSlugLen], "-")
	}
	return slug
}

const slugAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"

func randomSuffix(n int) string {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		panic(err)
	}
	for i := range buf {
		buf[i] = slugAlphabet[int(buf[i])%len(slugAlphabet)]
	}
	return string(buf)
}

// uniqueSlug derives a slug from the title that no other blog uses yet.
func uniqueSlug(db *gorm.DB, title string) (string, error) {
	base := Slugify(title)
	if base == "" {
		base = randomSuffix(6)
	}

	slug := base
	for attempt := 0; attempt < 5; attempt++ {
		var count int64
		if err := db.Model(&models.Blog{}).Where("slug = ?", slug).Count(&count).Error; err != nil {
			return "", err
		}
		if count == 0 {
			return slug, nil
		}
		trimmed := base
		if len(trimmed) > maxSlugLen-7 {
			trimmed = strings.TrimRight(trimmed[:maxSlugLen-7], "-")
		}
		slug = trimmed + "-" + randomSuffix(6)
	}
	return "", errors.New("could not allocate a unique slug")
}
