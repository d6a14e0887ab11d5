package search

import (
	"encoding/json"
	"time"

	"github.com/NagallaThanvi/unilink/model"
)

// ProfileDoc is the indexed form of a public profile
type ProfileDoc struct {
	UserID         uint      `json:"user_id"`
	UniversityID   uint      `json:"university_id"`
	Name           string    `json:"name"`
	Headline       string    `json:"headline"`
	Bio            string    `json:"bio"`
	Company        string    `json:"company"`
	JobTitle       string    `json:"job_title"`
	Major          string    `json:"major"`
	Location       string    `json:"location"`
	GraduationYear int       `json:"graduation_year"`
	Skills         []string  `json:"skills"`
	IsMentor       bool      `json:"is_mentor"`
	AvatarURL      string    `json:"avatar_url"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// BuildProfileDoc expects User to be preloaded
func BuildProfileDoc(p model.Profile) ([]byte, error) {
	skills := []string(p.Skills)
	if skills == nil {
		skills = []string{}
	}
	return json.Marshal(ProfileDoc{
		UserID: p.UserID, UniversityID: p.UniversityID, Name: p.User.Name,
		Headline: p.Headline, Bio: p.Bio, Company: p.Company, JobTitle: p.JobTitle,
		Major: p.Major, Location: p.Location, GraduationYear: p.GraduationYear,
		Skills: skills, IsMentor: p.IsMentor, AvatarURL: p.AvatarURL, UpdatedAt: p.UpdatedAt,
	})
}

// JobDoc is the indexed form of a job posting
type JobDoc struct {
	UniversityID uint       `json:"university_id"`
	Title        string     `json:"title"`
	Company      string     `json:"company"`
	Location     string     `json:"location"`
	Type         string     `json:"type"`
	Description  string     `json:"description"`
	Tags         []string   `json:"tags"`
	Status       string     `json:"status"`
	SalaryMin    int        `json:"salary_min"`
	SalaryMax    int        `json:"salary_max"`
	Deadline     *time.Time `json:"deadline,omitempty"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

func BuildJobDoc(j model.JobPosting) ([]byte, error) {
	tags := []string(j.Tags)
	if tags == nil {
		tags = []string{}
	}
	return json.Marshal(JobDoc{
		UniversityID: j.UniversityID, Title: j.Title, Company: j.Company, Location: j.Location,
		Type: j.Type, Description: j.Description, Tags: tags, Status: j.Status,
		SalaryMin: j.SalaryMin, SalaryMax: j.SalaryMax, Deadline: j.Deadline, UpdatedAt: j.UpdatedAt,
	})
}

// searchFields are the text fields matched per index, with boosts
var searchFields = map[string][]string{
	IdxProfiles: {"name^3", "headline^2", "company^2", "job_title", "major", "skills^2", "bio", "location"},
	IdxJobs:     {"title^3", "company^2", "tags^2", "description", "location"},
}
