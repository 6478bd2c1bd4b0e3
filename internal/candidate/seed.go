package candidate

import (
	"fmt"
	"strings"
	"time"
)

// Profile is a candidate with its history, as inserted by seeders.
type Profile struct {
	Candidate  Candidate
	Experience []Experience
	Education  []Education
}

var (
	seedFirstNames = []string{"Aarav", "Maya", "Liam", "Sofia", "Noah", "Priya", "Ethan", "Zara", "Lucas", "Ananya"}
	seedLastNames  = []string{"Sharma", "Chen", "Okafor", "Garcia", "Nguyen", "Patel", "Müller"}
	seedTitles     = []string{"Senior Frontend Engineer", "Backend Engineer", "Full Stack Developer", "Data Engineer", "DevOps Engineer", "Engineering Manager"}
	seedCompanies  = []string{"Acme Corp", "Globex", "Initech", "Umbrella", "Hooli", "Stark Industries"}
	seedLocations  = []string{"Bangalore, India", "San Francisco, USA", "London, UK", "Berlin, Germany", "Remote", "Toronto, Canada"}
	seedSkills     = []string{"React", "Node.js", "TypeScript", "Python", "AWS", "Docker", "Next.js", "PostgreSQL"}
	seedSchools    = []string{"IIT Madras", "Stanford University", "University of Toronto", "TU Munich"}
)

// DemoProfiles returns n deterministic profiles for local environments.
func DemoProfiles(n int) []Profile {
	availability := []Availability{AvailabilityAvailable, AvailabilityOpenToWork, AvailabilityUnavailable}
	profiles := make([]Profile, 0, n)
	for i := 0; i < n; i++ {
		first := seedFirstNames[i%len(seedFirstNames)]
		last := seedLastNames[(i/len(seedFirstNames)+i)%len(seedLastNames)]
		years := 1 + (i*3)%15
		skills := make([]string, 0, 4)
		for k := 0; k < 3+i%3; k++ {
			skills = append(skills, seedSkills[(i+k*3)%len(seedSkills)])
		}

		c := Candidate{
			Name:               first + " " + last,
			Email:              fmt.Sprintf("%s.%s%d@example.com", strings.ToLower(first), strings.ToLower(last), i),
			Title:              seedTitles[i%len(seedTitles)],
			Company:            seedCompanies[i%len(seedCompanies)],
			ExperienceYears:    years,
			Location:           seedLocations[i%len(seedLocations)],
			AvailabilityStatus: availability[i%len(availability)],
			ImageURL:           fmt.Sprintf("https://i.pravatar.cc/150?img=%d", i%70+1),
			About:              fmt.Sprintf("%s with %d years of experience building products.", seedTitles[i%len(seedTitles)], years),
			ContactLocked:      true,
			MatchPercent:       60 + (i*7)%40,
			Skills:             skills,
		}

		start := time.Date(2024-years, time.January, 1, 0, 0, 0, 0, time.UTC)
		mid := start.AddDate(years/2, 0, 0)
		profiles = append(profiles, Profile{
			Candidate: c,
			Experience: []Experience{
				{Company: c.Company, Position: c.Title, StartDate: mid, OrderIndex: 0},
				{Company: seedCompanies[(i+1)%len(seedCompanies)], Position: "Software Engineer", StartDate: start, EndDate: &mid, OrderIndex: 1},
			},
			Education: []Education{
				{Institution: seedSchools[i%len(seedSchools)], Degree: "B.Tech", FieldOfStudy: "Computer Science", GraduationYear: start.Year(), OrderIndex: 0},
			},
		})
	}
	return profiles
}
