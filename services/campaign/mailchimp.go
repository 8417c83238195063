// Package campaignsvc dispatches email campaigns through the Mailchimp
// marketing API.
package campaignsvc

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/pkg/errors"
	"github.com/sendgrid/rest"

	"github.com/telecom-etude/erp/core"
)

type mailchimpService struct {
	baseURL string
	headers map[string]string
	logger  core.Logger
}

var _ core.CampaignService = (*mailchimpService)(nil)

func NewMailchimpService(conf *core.Config, logger core.Logger) *mailchimpService {
	auth := base64.StdEncoding.EncodeToString([]byte("anystring:" + conf.Mailchimp.APIKey))
	return &mailchimpService{
		baseURL: fmt.Sprintf("https://%s.api.mailchimp.com/3.0", conf.Mailchimp.ServerPrefix),
		headers: map[string]string{
			"Authorization": "Basic " + auth,
			"Content-Type":  "application/json",
		},
		logger: logger,
	}
}

type campaignResource struct {
	ID         string `json:"id"`
	Recipients struct {
		ListID string `json:"list_id"`
	} `json:"recipients"`
}

// Send runs the full dispatch sequence: create the campaign, check it
// targets the expected recipient list, attach the content, then trigger
// the send. Each step failure maps to its own error so callers can tell
// how far the dispatch got.
func (svc mailchimpService) Send(ctx context.Context, c core.Campaign) error {
	camp, err := svc.createCampaign(ctx, c)
	if err != nil {
		return err
	}
	if camp.Recipients.ListID != c.RecipientListID {
		return core.ErrCantCreateCampaignForRecipientList
	}
	if err = svc.setContent(ctx, camp.ID, c); err != nil {
		return err
	}
	return svc.sendCampaign(ctx, camp.ID)
}

func (svc mailchimpService) createCampaign(ctx context.Context, c core.Campaign) (campaignResource, error) {
	body, err := json.Marshal(map[string]interface{}{
		"type": "regular",
		"recipients": map[string]interface{}{
			"list_id": c.RecipientListID,
		},
		"settings": map[string]interface{}{
			"subject_line": c.Subject,
			"from_name":    c.FromName,
			"reply_to":     c.ReplyTo,
		},
	})
	if err != nil {
		return campaignResource{}, errors.Wrap(core.ErrCampaignUnknown, err.Error())
	}

	res, err := rest.Send(rest.Request{
		Method:  http.MethodPost,
		BaseURL: svc.baseURL + "/campaigns",
		Headers: svc.headers,
		Body:    body,
	})
	if err != nil {
		svc.logger.Error(fmt.Sprintf("creating campaign: %v", err), err)
		return campaignResource{}, core.ErrCantCreateCampaign
	}
	if res.StatusCode >= http.StatusBadRequest {
		svc.logger.Error(fmt.Sprintf("creating campaign - status: %d - Body: %s", res.StatusCode, res.Body))
		return campaignResource{}, core.ErrCantCreateCampaign
	}

	var camp campaignResource
	if err = json.Unmarshal([]byte(res.Body), &camp); err != nil {
		svc.logger.Error(fmt.Sprintf("decoding campaign: %v", err), err)
		return campaignResource{}, core.ErrCantCreateCampaign
	}
	return camp, nil
}

func (svc mailchimpService) setContent(ctx context.Context, campaignID string, c core.Campaign) error {
	body, err := json.Marshal(map[string]interface{}{
		"html":       c.HTML,
		"plain_text": c.PlainText,
	})
	if err != nil {
		return errors.Wrap(core.ErrCampaignUnknown, err.Error())
	}

	res, err := rest.Send(rest.Request{
		Method:  http.MethodPut,
		BaseURL: svc.baseURL + "/campaigns/" + campaignID + "/content",
		Headers: svc.headers,
		Body:    body,
	})
	if err != nil {
		svc.logger.Error(fmt.Sprintf("attaching campaign content: %v", err), err)
		return core.ErrFailedToAttachContent
	}
	if res.StatusCode >= http.StatusBadRequest {
		svc.logger.Error(fmt.Sprintf("attaching campaign content - status: %d - Body: %s", res.StatusCode, res.Body))
		return core.ErrFailedToAttachContent
	}
	return nil
}

func (svc mailchimpService) sendCampaign(ctx context.Context, campaignID string) error {
	res, err := rest.Send(rest.Request{
		Method:  http.MethodPost,
		BaseURL: svc.baseURL + "/campaigns/" + campaignID + "/actions/send",
		Headers: svc.headers,
	})
	if err != nil {
		svc.logger.Error(fmt.Sprintf("sending campaign: %v", err), err)
		return core.ErrCampaignUnknown
	}
	if res.StatusCode >= http.StatusBadRequest {
		svc.logger.Error(fmt.Sprintf("sending campaign - status: %d - Body: %s", res.StatusCode, res.Body))
		return core.ErrCampaignUnknown
	}
	return nil
}
