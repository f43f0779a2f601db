package registry

import (
	"github.com/profile-enricher/internal/config"
	"github.com/profile-enricher/internal/models"
	"github.com/profile-enricher/internal/source"
)

// FromConfig builds the service table for the enabled kinds, wiring
// each descriptor to its HTTP data source.
func FromConfig(cfg *config.ServicesConfig) (*Table, error) {
	var descriptors []*Descriptor
	for _, name := range cfg.Enabled {
		switch models.ServiceKind(name) {
		case models.KindGitHub:
			descriptors = append(descriptors, &Descriptor{
				Kind:            models.KindGitHub,
				RefreshInterval: cfg.GitHub.RefreshInterval,
				Source:          source.NewGitHub(cfg.GitHub),
				Identifier:      identifierFor(models.KindGitHub),
			})
		case models.KindTwitter:
			descriptors = append(descriptors, &Descriptor{
				Kind:            models.KindTwitter,
				RefreshInterval: cfg.Twitter.RefreshInterval,
				Source:          source.NewTwitter(cfg.Twitter),
				Identifier:      identifierFor(models.KindTwitter),
			})
		case models.KindDribbble:
			descriptors = append(descriptors, &Descriptor{
				Kind:            models.KindDribbble,
				RefreshInterval: cfg.Dribbble.RefreshInterval,
				Source:          source.NewDribbble(cfg.Dribbble),
				Identifier:      identifierFor(models.KindDribbble),
			})
		case models.KindLinkedIn:
			descriptors = append(descriptors, &Descriptor{
				Kind:            models.KindLinkedIn,
				RefreshInterval: cfg.LinkedIn.RefreshInterval,
				Source:          source.NewLinkedIn(cfg.LinkedIn),
				Identifier:      identifierFor(models.KindLinkedIn),
			})
		}
	}
	return NewTable(descriptors...)
}

func identifierFor(kind models.ServiceKind) func(*models.Subject) string {
	return func(s *models.Subject) string {
		return s.Identifier(kind)
	}
}
