// Package dummycampaign records dispatched campaigns instead of calling
// the provider; tests inspect SentCampaigns.
package dummycampaign

import (
	"context"
	"sync"

	"github.com/telecom-etude/erp/core"
)

type Service struct {
	mu            sync.Mutex
	SentCampaigns []core.Campaign
	Err           error // returned by Send when set
}

var _ core.CampaignService = (*Service)(nil)

func NewService() *Service {
	return &Service{SentCampaigns: make([]core.Campaign, 0)}
}

func (svc *Service) Send(_ context.Context, c core.Campaign) error {
	svc.mu.Lock()
	defer svc.mu.Unlock()

	if svc.Err != nil {
		return svc.Err
	}
	svc.SentCampaigns = append(svc.SentCampaigns, c)
	return nil
}

func (svc *Service) Reset() {
	svc.mu.Lock()
	defer svc.mu.Unlock()
	svc.SentCampaigns = svc.SentCampaigns[:0]
	svc.Err = nil
}
