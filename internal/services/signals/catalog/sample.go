package catalog

import "github.com/louisbranch/signals.agent/internal/services/signals/domain"

// Sample returns the built-in demo catalog used when no catalog file is
// configured.
func Sample() Snapshot {
	f := domain.Float
	return Snapshot{
		Signals: []domain.Signal{
			{
				ID:          "sports_enthusiasts_public",
				Name:        "Sports Enthusiasts - Public",
				Description: "Broad sports audience available platform-wide",
				Provider:    "Polk",
				Type:        domain.SignalAudience,
				Visibility:  domain.AccessPublic,
				Coverage:    f(45),
				Pricing:     domain.Pricing{CPM: f(3.5), RevenueSharePercentage: f(15), Currency: "USD"},
				Deployments: []domain.Deployment{
					{Platform: "the-trade-desk", Scope: domain.ScopePlatformWide, IsLive: true, PlatformSegmentID: "ttd_sports_general"},
					{Platform: "index-exchange", Scope: domain.ScopePlatformWide, IsLive: true, PlatformSegmentID: "ix_sports_enthusiasts_public"},
				},
			},
			{
				ID:          "seg_200065",
				Name:        "Sports",
				Description: "Pages about sports news, scores and teams",
				Provider:    "Peer39",
				Type:        domain.SignalContextual,
				Visibility:  domain.AccessPublic,
				Coverage:    f(18),
				Pricing:     domain.Pricing{CPM: f(1.25), Currency: "USD"},
			},
			{
				ID:          "luxury_auto_intenders",
				Name:        "Luxury Automotive Intenders",
				Description: "High-income individuals showing luxury car purchase intent",
				Provider:    "Experian",
				Type:        domain.SignalAudience,
				Visibility:  domain.AccessPersonalized,
				Coverage:    f(12.5),
				Pricing:     domain.Pricing{CPM: f(8.75), RevenueSharePercentage: f(20), Currency: "USD"},
			},
			{
				ID:          "peer39_luxury_auto",
				Name:        "Luxury Automotive Context",
				Description: "Pages with luxury automotive content and high viewability",
				Provider:    "Peer39",
				Type:        domain.SignalContextual,
				Visibility:  domain.AccessPublic,
				Coverage:    f(15),
				Pricing:     domain.Pricing{CPM: f(2.5), RevenueSharePercentage: f(12), Currency: "USD"},
				Deployments: []domain.Deployment{
					{Platform: "index-exchange", Scope: domain.ScopePlatformWide, IsLive: true, PlatformSegmentID: "ix_peer39_luxury_auto_gen"},
					{Platform: "openx", Scope: domain.ScopePlatformWide, IsLive: true, PlatformSegmentID: "ox_peer39_lux_auto_456"},
					{Platform: "pubmatic", Account: "brand-456-pm", Scope: domain.ScopeAccountSpecific},
					{Platform: "index-exchange", Account: "agency-123-ix", Scope: domain.ScopeAccountSpecific, IsLive: true, PlatformSegmentID: "ix_agency123_peer39_lux_auto"},
				},
			},
			{
				ID:          "running_gear_premium",
				Name:        "Premium Running Gear Buyers",
				Description: "High-income consumers who purchase premium athletic equipment",
				Provider:    "Acxiom",
				Type:        domain.SignalAudience,
				Visibility:  domain.AccessPersonalized,
				Coverage:    f(8.3),
				Pricing:     domain.Pricing{CPM: f(6.25), RevenueSharePercentage: f(18), Currency: "USD"},
				Deployments: []domain.Deployment{
					{Platform: "the-trade-desk", Account: "omnicom-ttd-main", Scope: domain.ScopeAccountSpecific},
				},
			},
			{
				ID:          "urban_millennials",
				Name:        "Urban Millennials",
				Description: "Millennials living in major urban markets with disposable income",
				Provider:    "LiveRamp",
				Type:        domain.SignalAudience,
				Visibility:  domain.AccessPublic,
				Coverage:    f(32),
				Pricing:     domain.Pricing{CPM: f(4), RevenueSharePercentage: f(15), Currency: "USD"},
				Deployments: []domain.Deployment{
					{Platform: "the-trade-desk", Scope: domain.ScopePlatformWide, IsLive: true, PlatformSegmentID: "ttd_urban_millennials_gen"},
				},
			},
			{
				ID:          "private_customer_segments",
				Name:        "Private Customer Segments",
				Description: "Proprietary first-party audience segments",
				Provider:    "Internal",
				Type:        domain.SignalPrivate,
				Visibility:  domain.AccessPrivate,
				Coverage:    f(100),
				Pricing:     domain.Pricing{CPM: f(0), Currency: "USD"},
			},
			{
				ID:          "weather_based_targeting",
				Name:        "Weather-Based Targeting",
				Description: "Environmental signals for weather conditions (sunny, rainy, cold)",
				Provider:    "WeatherData",
				Type:        domain.SignalEnvironmental,
				Visibility:  domain.AccessPublic,
				Coverage:    f(95),
				Pricing:     domain.Pricing{CPM: f(1.5), RevenueSharePercentage: f(10), Currency: "USD"},
			},
			{
				ID:          "geo_urban_centers",
				Name:        "Major Urban Centers",
				Description: "Geographical signals for top 50 US metropolitan areas",
				Provider:    "GeoTarget",
				Type:        domain.SignalGeographical,
				Visibility:  domain.AccessPublic,
				Coverage:    f(68),
				Pricing:     domain.Pricing{CPM: f(2), RevenueSharePercentage: f(12), Currency: "USD"},
			},
			{
				ID:          "prime_time_viewing",
				Name:        "Prime Time TV Viewing",
				Description: "Temporal signals for evening hours (6PM-11PM local time)",
				Provider:    "TimeTarget",
				Type:        domain.SignalTemporal,
				Visibility:  domain.AccessPublic,
				Coverage:    f(100),
				Pricing:     domain.Pricing{CPM: f(3), RevenueSharePercentage: f(15), Currency: "USD"},
			},
			{
				ID:          "contextual_news_finance",
				Name:        "Financial News Context",
				Description: "Contextual signals for financial and business news content",
				Provider:    "Peer39",
				Type:        domain.SignalContextual,
				Visibility:  domain.AccessPublic,
				Coverage:    f(22),
				Pricing:     domain.Pricing{CPM: f(4.5), RevenueSharePercentage: f(18), Currency: "USD"},
			},
			{
				ID:          "household_income_unknown",
				Name:        "Affluent Households",
				Description: "Households in the top income decile, modeled from survey panels",
				Provider:    "Polk",
				Type:        domain.SignalAudience,
				Visibility:  domain.AccessPublic,
			},
		},
		Principals: []domain.Principal{
			{ID: "public", Name: "Public Access", AccessLevel: domain.AccessPublic},
			{
				ID:          "acme_corp",
				Name:        "ACME Corporation",
				AccessLevel: domain.AccessPersonalized,
				Accounts: map[string]string{
					"the-trade-desk": "omnicom-ttd-main",
					"index-exchange": "agency-123-ix",
				},
				PricingOverrides: map[string]domain.Pricing{
					"luxury_auto_intenders":     {CPM: f(6.5)},
					"sports_enthusiasts_public": {CPM: f(2.75)},
				},
			},
			{
				ID:             "luxury_brands_inc",
				Name:           "Luxury Brands Inc",
				AccessLevel:    domain.AccessPersonalized,
				Accounts:       map[string]string{"pubmatic": "brand-456-pm"},
				GrantedSignals: []string{"luxury_auto_intenders"},
			},
			{ID: "startup_agency", Name: "Startup Digital Agency", AccessLevel: domain.AccessPublic},
			{ID: "auto_manufacturer", Name: "Global Auto Manufacturer", AccessLevel: domain.AccessPrivate},
		},
	}
}
