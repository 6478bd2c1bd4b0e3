package campaign

import "time"

// Demo is a campaign with its sequences and recipients, as inserted by
// seeders.
type Demo struct {
	Name       string
	Type       Type
	Status     Status
	Sequences  []Sequence
	Recipients []Recipient
}

const recipientsPerCampaign = 10

// DemoCampaigns returns the demo campaigns. Email campaigns carry a two-step
// sequence; active ones reach up to ten of candidateIDs with a fixed
// open and reply pattern, all dated relative to now.
func DemoCampaigns(candidateIDs []int64, now time.Time) []Demo {
	specs := []struct {
		name   string
		typ    Type
		status Status
	}{
		{"Q1 Frontend Recruitment", TypeEmail, StatusActive},
		{"Senior Backend Drive", TypeLinkedIn, StatusActive},
		{"Product Designer Outreach", TypeEmail, StatusPaused},
		{"Mobile Lead Hunting", TypeEmail, StatusDraft},
	}
	demos := make([]Demo, 0, len(specs))
	for _, s := range specs {
		d := Demo{Name: s.name, Type: s.typ, Status: s.status}
		if s.typ == TypeEmail {
			d.Sequences = []Sequence{demoSequence(s.name)}
		}
		if s.status == StatusActive {
			d.Recipients = demoRecipients(candidateIDs, now)
		}
		demos = append(demos, d)
	}
	return demos
}

func demoSequence(campaign string) Sequence {
	return Sequence{
		Name:    campaign + " Primary Sequence",
		Subject: "Job Opportunity at TechCorp",
		Status:  "active",
		Steps: []Step{
			{Order: 1, DelayDays: 0, Subject: "Exciting Role: " + campaign, Body: "Hi {{name}}, I saw your profile and was impressed..."},
			{Order: 2, DelayDays: 3, Subject: "Follow up: " + campaign, Body: "Hi {{name}}, just following up on my previous email..."},
		},
	}
}

// demoRecipients opens eight in ten messages and gets replies on three.
func demoRecipients(candidateIDs []int64, now time.Time) []Recipient {
	n := min(len(candidateIDs), recipientsPerCampaign)
	out := make([]Recipient, 0, n)
	for i, id := range candidateIDs[:n] {
		sent := now.Add(-time.Duration(n-i) * 24 * time.Hour)
		r := Recipient{CandidateID: id, Status: "sent", SentAt: sent}
		replied := i%4 == 0
		if i%3 != 2 || replied {
			opened := sent.Add(2 * time.Hour)
			r.OpenedAt = &opened
		}
		if replied {
			at := sent.Add(26 * time.Hour)
			r.RepliedAt = &at
		}
		out = append(out, r)
	}
	return out
}
