package store

// AppendSeal appends a seal to the sessions list. The list is append-only
// in practice: existing rows are never updated.
func (p Paths) AppendSeal(seal Seal) error {
	seals := p.LoadSeals()
	seals = append(seals, seal)
	return WriteJSON(p.SessionsFile(), seals, PermDataFile)
}

// LoadSeals reads the sessions list; missing or malformed files read as
// empty.
func (p Paths) LoadSeals() []Seal {
	var seals []Seal
	ReadJSON(p.SessionsFile(), &seals)
	return seals
}

// HasSeal reports whether a seal with the given session ID exists.
func (p Paths) HasSeal(sessionID string) bool {
	for _, s := range p.LoadSeals() {
		if s.SessionID == sessionID {
			return true
		}
	}
	return false
}

// UpsertMilestone inserts a milestone, or replaces the row with the same ID.
func (p Paths) UpsertMilestone(m Milestone) error {
	milestones := p.LoadMilestones()
	replaced := false
	for i := range milestones {
		if milestones[i].ID == m.ID {
			milestones[i] = m
			replaced = true
			break
		}
	}
	if !replaced {
		milestones = append(milestones, m)
	}
	return WriteJSON(p.MilestonesFile(), milestones, PermDataFile)
}

// LoadMilestones reads the milestones list; missing or malformed files read
// as empty.
func (p Paths) LoadMilestones() []Milestone {
	var milestones []Milestone
	ReadJSON(p.MilestonesFile(), &milestones)
	return milestones
}

// HasMilestone reports whether a milestone with the given ID exists.
func (p Paths) HasMilestone(id string) bool {
	for _, m := range p.LoadMilestones() {
		if m.ID == id {
			return true
		}
	}
	return false
}
