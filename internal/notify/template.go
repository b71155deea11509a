package notify

import (
	"bytes"
	"html/template"
	"net/url"
)

var approvalEmail = template.Must(template.New("approval").Parse(`<html><body>
    <h2>Approval Request for Generated Business Artifacts</h2>
    <p>Please review the generated documents and approve or reject.</p>
    <p>
        <a href="{{.ApproveURL}}" style="padding: 10px 15px; background-color: #28a745; color: white; text-decoration: none; border-radius: 5px;">Approve</a>
        <a href="{{.RejectURL}}" style="padding: 10px 15px; background-color: #dc3545; color: white; text-decoration: none; border-radius: 5px; margin-left: 10px;">Reject</a>
    </p>
    <hr><h3>Technical Requirements Document</h3><pre>{{.TRD}}</pre>
</body></html>`))

type emailData struct {
	ApproveURL string
	RejectURL  string
	TRD        string
}

// DecisionURL builds the link a reviewer follows to record a decision.
func DecisionURL(baseURL, id, decision string) string {
	q := url.Values{}
	q.Set("id", id)
	q.Set("decision", decision)
	return baseURL + "/api/approval_response?" + q.Encode()
}

func renderApprovalEmail(baseURL, id, trd string) (string, error) {
	if trd == "" {
		trd = "Not provided."
	}
	var buf bytes.Buffer
	err := approvalEmail.Execute(&buf, emailData{
		ApproveURL: DecisionURL(baseURL, id, "approved"),
		RejectURL:  DecisionURL(baseURL, id, "rejected"),
		TRD:        trd,
	})
	if err != nil {
		return "", err
	}
	return buf.String(), nil
}
