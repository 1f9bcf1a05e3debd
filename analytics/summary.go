package analytics

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"jyurniq/models"
)

type UserStats struct {
	Total    int64 `json:"total"`
	Verified int64 `json:"verified"`
	Admins   int64 `json:"admins"`
	Editors  int64 `json:"editors"`
	Recent   int64 `json:"recent"`
}

type BlogStats struct {
	Total    int64 `json:"total"`
	Approved int64 `json:"approved"`
	Pending  int64 `json:"pending"`
	Rejected int64 `json:"rejected"`
	Public   int64 `json:"public"`
	Private  int64 `json:"private"`
	Recent   int64 `json:"recent"`
}

type CommentStats struct {
	Total  int64 `json:"total"`
	Recent int64 `json:"recent"`
}

type PaymentStats struct {
	Total         int64           `json:"total"`
	Successful    int64           `json:"successful"`
	Failed        int64           `json:"failed"`
	TotalEarnings decimal.Decimal `json:"totalEarnings"`
}

type TopBlogger struct {
	ID        uint   `json:"id"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	BlogCount int64  `json:"blogCount"`
}

type TopBlog struct {
	ID    uint   `json:"id"`
	Title string `json:"title"`
	Slug  string `json:"slug"`
	Views int64  `json:"views"`
}

type Summary struct {
	Users       UserStats    `json:"users"`
	Blogs       BlogStats    `json:"blogs"`
	Comments    CommentStats `json:"comments"`
	Payments    PaymentStats `json:"payments"`
	TopBloggers []TopBlogger `json:"topBloggers"`
	TopBlogs    []TopBlog    `json:"topBlogs"`
	GeneratedAt time.Time    `json:"generatedAt"`
}

const recentWindow = 7 * 24 * time.Hour

// Summary aggregates the platform counters shown on the admin console.
func (a *AnalyticsModule) Summary(ctx context.Context) (*Summary, error) {
	db := a.db.WithContext(ctx)
	since := time.Now().Add(-recentWindow)
	s := &Summary{GeneratedAt: time.Now().UTC()}

	count := func(model interface{}, dest *int64, query string, args ...interface{}) error {
		q := db.Model(model)
		if query != "" {
			q = q.Where(query, args...)
		}
		return q.Count(dest).Error
	}

	counts := []struct {
		model interface{}
		dest  *int64
		query string
		args  []interface{}
	}{
		{&models.User{}, &s.Users.Total, "", nil},
		{&models.User{}, &s.Users.Verified, "email_verified = ?", []interface{}{true}},
		{&models.User{}, &s.Users.Admins, "role = ?", []interface{}{models.RoleAdmin}},
		{&models.User{}, &s.Users.Editors, "role = ?", []interface{}{models.RoleEditor}},
		{&models.User{}, &s.Users.Recent, "created_at >= ?", []interface{}{since}},
		{&models.Blog{}, &s.Blogs.Total, "", nil},
		{&models.Blog{}, &s.Blogs.Approved, "approved = ?", []interface{}{true}},
		{&models.Blog{}, &s.Blogs.Pending, "status = ? OR ((status IS NULL OR status = '') AND approved = ?)", []interface{}{models.StatusPending, false}},
		{&models.Blog{}, &s.Blogs.Rejected, "status = ?", []interface{}{models.StatusRejected}},
		{&models.Blog{}, &s.Blogs.Public, "privacy = ?", []interface{}{models.PrivacyPublic}},
		{&models.Blog{}, &s.Blogs.Private, "privacy = ?", []interface{}{models.PrivacyPrivate}},
		{&models.Blog{}, &s.Blogs.Recent, "created_at >= ?", []interface{}{since}},
		{&models.Comment{}, &s.Comments.Total, "", nil},
		{&models.Comment{}, &s.Comments.Recent, "created_at >= ?", []interface{}{since}},
		{&models.Payment{}, &s.Payments.Total, "", nil},
		{&models.Payment{}, &s.Payments.Successful, "status = ?", []interface{}{models.PaymentSucceeded}},
		{&models.Payment{}, &s.Payments.Failed, "status = ?", []interface{}{models.PaymentFailed}},
	}
	for _, c := range counts {
		if err := count(c.model, c.dest, c.query, c.args...); err != nil {
			return nil, fmt.Errorf("failed to count: %w", err)
		}
	}

	var earnings decimal.NullDecimal
	err := db.Model(&models.Payment{}).
		Where("status = ?", models.PaymentSucceeded).
		Select("SUM(amount)").
		Row().Scan(&earnings)
	if err != nil {
		return nil, fmt.Errorf("failed to sum earnings: %w", err)
	}
	s.Payments.TotalEarnings = decimal.Zero
	if earnings.Valid {
		s.Payments.TotalEarnings = earnings.Decimal
	}

	s.TopBloggers = []TopBlogger{}
	err = db.Model(&models.Blog{}).
		Select("users.id AS id, users.name AS name, users.email AS email, COUNT(blogs.id) AS blog_count").
		Joins("JOIN users ON users.id = blogs.author_id").
		Group("users.id, users.name, users.email").
		Order("blog_count DESC, users.id ASC").
		Limit(5).
		Scan(&s.TopBloggers).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load top bloggers: %w", err)
	}

	s.TopBlogs, err = a.TopBlogs(ctx, 30, 5)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// TopBlogs returns the most viewed blogs of the last days.
func (a *AnalyticsModule) TopBlogs(ctx context.Context, days, limit int) ([]TopBlog, error) {
	out := []TopBlog{}
	err := a.db.WithContext(ctx).Model(&models.BlogView{}).
		Select("blogs.id AS id, blogs.title AS title, blogs.slug AS slug, COUNT(blog_views.id) AS views").
		Joins("JOIN blogs ON blogs.id = blog_views.blog_id").
		Where("blog_views.created_at >= ?", time.Now().AddDate(0, 0, -days)).
		Group("blogs.id, blogs.title, blogs.slug").
		Order("views DESC, blogs.id ASC").
		Limit(limit).
		Scan(&out).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load top blogs: %w", err)
	}
	return out, nil
}
