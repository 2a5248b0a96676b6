package database

import (
	"time"

	"dashboard-api/internal/domain"
)

// DefaultDataset gera o conjunto de desenvolvimento relativo a now
func DefaultDataset(now time.Time) ([]domain.Subreddit, []domain.Opportunity) {
	subreddits := []domain.Subreddit{
		{ID: 1, Name: "startups", DisplayName: "Startups", SubscriberCount: 1450000, TotalPosts: 320, TotalComments: 5400, IconPath: "/icons/startups.svg"},
		{ID: 2, Name: "smallbusiness", DisplayName: "Small Business", SubscriberCount: 1900000, TotalPosts: 280, TotalComments: 4100, IconPath: "/icons/smallbusiness.svg"},
		{ID: 3, Name: "SaaS", DisplayName: "SaaS", SubscriberCount: 210000, TotalPosts: 150, TotalComments: 2300, IconPath: "/icons/saas.svg"},
		{ID: 4, Name: "golang", DisplayName: "Golang", SubscriberCount: 250000, TotalPosts: 90, TotalComments: 800},
	}

	day := 24 * time.Hour
	opportunities := []domain.Opportunity{
		{ID: 101, SubredditID: 1, Title: "Invoice automation for freelancers", Description: "Freelancers struggle to chase unpaid invoices", Keywords: []string{"invoicing", "automation"}, ImpactScore: 8.7, CreatedAt: now.Add(-2 * day)},
		{ID: 102, SubredditID: 1, Title: "Cofounder matching by skills", Description: "Founders want vetted technical partners", Keywords: []string{"cofounder", "matching"}, ImpactScore: 7.4, CreatedAt: now.Add(-5 * day)},
		{ID: 103, SubredditID: 1, Title: "Pitch deck feedback marketplace", Description: "Early stage teams ask for quick deck reviews", Keywords: []string{"fundraising"}, ImpactScore: 6.1, CreatedAt: now.Add(-12 * day)},
		{ID: 104, SubredditID: 1, Title: "Legacy accounting export", Description: "Old export tooling nobody maintains", Keywords: []string{"accounting"}, ImpactScore: 3.2, CreatedAt: now.Add(-45 * day)},
		{ID: 201, SubredditID: 2, Title: "Appointment reminders via SMS", Description: "Salons lose revenue to no-shows", Keywords: []string{"sms", "scheduling"}, ImpactScore: 8.1, CreatedAt: now.Add(-1 * day)},
		{ID: 202, SubredditID: 2, Title: "Inventory tracking for cafes", Description: "Small cafes track stock on paper", Keywords: []string{"inventory"}, ImpactScore: 6.9, CreatedAt: now.Add(-8 * day)},
		{ID: 301, SubredditID: 3, Title: "Churn alerts from billing data", Description: "SaaS owners discover churn too late", Keywords: []string{"churn", "billing"}, ImpactScore: 9.2, CreatedAt: now.Add(-3 * day)},
	}

	return subreddits, opportunities
}
