package core

import (
	"context"

	"github.com/pkg/errors"
)

// Campaign dispatch errors. None of them is retriable within the same
// request: the provider may already have created a partial campaign.
var (
	ErrCantCreateCampaign                 = errors.New("cannot create the campaign")
	ErrCantCreateCampaignForRecipientList = errors.New("cannot create the campaign for this recipient list")
	ErrFailedToAttachContent              = errors.New("cannot attach content to the campaign")
	ErrCampaignUnknown                    = errors.New("unknown campaign error")
)

type (
	// Campaign is one email campaign to be dispatched to a recipient list
	// of the external campaign provider.
	Campaign struct {
		RecipientListID string
		FromName        string
		ReplyTo         string
		Subject         string
		HTML            string
		PlainText       string
	}

	// CampaignService is the boundary to the external email-campaign
	// provider. Send creates, fills and dispatches one campaign; it owns
	// no retry policy and duplicate calls may create duplicate campaigns.
	CampaignService interface {
		Send(ctx context.Context, campaign Campaign) error
	}
)
