package rules

// Defaults returns the built-in rule set: twenty-one visual tags and the
// default conflict groups. A fresh value is built on every call so callers
// may modify the result freely.
func Defaults() RuleSet {
	rs := RuleSet{
		Groups: DefaultConflictGroups(),
		Rules:  make(map[string]TagRule),
	}
	for _, r := range defaultRules() {
		rs.Rules[NormalizeTag(r.Tag)] = r
	}
	return rs
}

// DefaultConflictGroups returns the built-in global conflict groups.
func DefaultConflictGroups() ConflictGroups {
	return ConflictGroups{
		"mood":   {"Kind", "Bloodlust", "Psychopath"},
		"work":   {"Industrious", "HardWorker", "Lazy", "Slothful"},
		"social": {"Sociable", "Annoying", "AnnoyingVoice"},
		"combat": {"Brawler", "Tough", "Wimp", "Careful"},
		"mental": {"Steadfast", "Nervous", "NervousBreakdown", "IronWilled"},
		"beauty": {"Beautiful", "Pretty", "Ugly", "Staggeringly Ugly"},
	}
}

func trait(def string, priority int, c Category) Trait {
	return Trait{Def: def, Priority: priority, Category: c}
}

func skill(name string, bonus int, p Passion) Skill {
	return Skill{Name: name, Bonus: bonus, Passion: p}
}

func defaultRules() []TagRule {
	return []TagRule{
		// Mood and expression.
		{
			Tag:         "angry",
			Description: "Angry expression implies violent tendencies",
			Traits: []Trait{
				trait("Bloodlust", 60, CategoryMood),
				trait("Volatile", 50, CategoryMental),
			},
			Skills: []Skill{skill("Melee", 3, PassionMinor)},
		},
		{
			Tag:         "kind",
			Description: "Friendly and compassionate demeanor",
			Traits:      []Trait{trait("Kind", 70, CategoryMood)},
			Skills:      []Skill{skill("Social", 2, PassionMinor)},
		},
		{
			Tag:         "cold",
			Description: "Cold expression implies lack of empathy",
			Traits:      []Trait{trait("Psychopath", 55, CategoryMood)},
		},
		{
			Tag:         "sad",
			Description: "Sadness, possibly linked to trauma",
			Traits:      []Trait{trait("DepressiveMood", 50, CategoryMental)},
		},
		{
			Tag:         "confident",
			Description: "Confidence, possibly a leader or experienced individual",
			Traits:      []Trait{trait("Steadfast", 60, CategoryMental)},
			Skills:      []Skill{skill("Social", 2, PassionNone)},
		},

		// Physical features.
		{
			Tag:         "scar",
			Description: "Scar suggests experience in combat or dangerous situations",
			Traits:      []Trait{trait("Tough", 55, CategoryPhysical)},
			Skills: []Skill{
				skill("Melee", 2, PassionNone),
				skill("Shooting", 1, PassionNone),
			},
		},
		{
			Tag:         "bionic_eye",
			Description: "Bionic eye suggests proficiency with technology",
			Traits:      []Trait{trait("Transhumanist", 65, CategoryUncategorized)},
			Skills: []Skill{
				skill("Shooting", 4, PassionMinor),
				skill("Intellectual", 2, PassionNone),
			},
		},
		{
			Tag:         "cybernetic",
			Description: "Cybernetic parts suggest enhancement and technology affinity",
			Traits:      []Trait{trait("Transhumanist", 70, CategoryUncategorized)},
			Skills:      []Skill{skill("Intellectual", 3, PassionMinor)},
		},
		{
			Tag:         "muscular",
			Description: "Well-developed muscles indicate strength and physical labor capabilities",
			Traits:      []Trait{trait("Tough", 50, CategoryPhysical)},
			Skills: []Skill{
				skill("Melee", 3, PassionMinor),
				skill("Construction", 2, PassionNone),
			},
		},

		// Clothing and accessories.
		{
			Tag:         "red_jacket",
			Description: "Red jacket implies a combative or rebellious nature",
			Traits:      []Trait{trait("Brawler", 45, CategoryCombat)},
			Skills:      []Skill{skill("Melee", 2, PassionNone)},
		},
		{
			Tag:         "military_uniform",
			Description: "Military uniform suggests a military background",
			Traits:      []Trait{trait("Tough", 60, CategoryPhysical)},
			Skills: []Skill{
				skill("Shooting", 4, PassionMajor),
				skill("Melee", 2, PassionMinor),
			},
		},
		{
			Tag:         "lab_coat",
			Description: "Lab coat suggests a scientific or medical background",
			Traits:      []Trait{trait("Ascetic", 40, CategoryUncategorized)},
			Skills: []Skill{
				skill("Intellectual", 5, PassionMajor),
				skill("Medicine", 3, PassionMinor),
			},
		},
		{
			Tag:         "crown",
			Description: "Crown suggests nobility or leadership qualities",
			Traits:      []Trait{trait("Greedy", 50, CategoryUncategorized)},
			Skills:      []Skill{skill("Social", 4, PassionMajor)},
		},
		{
			Tag:         "hood",
			Description: "Hood implies stealth and caution",
			Traits:      []Trait{trait("Careful", 45, CategoryCombat)},
			Skills:      []Skill{skill("Shooting", 2, PassionNone)},
		},

		// Special visual elements.
		{
			Tag:         "horns",
			Description: "Horns imply aggression and a combative nature",
			Traits:      []Trait{trait("Aggressive", 50, CategoryMood)},
			Skills:      []Skill{skill("Melee", 2, PassionMinor)},
		},
		{
			Tag:         "wings",
			Description: "Wings suggest agility and swift movement",
			Traits:      []Trait{trait("Fast", 55, CategoryPhysical)},
		},
		{
			Tag:         "halo",
			Description: "Halo implies a benevolent and kind nature",
			Traits:      []Trait{trait("Kind", 65, CategoryMood)},
			Skills:      []Skill{skill("Social", 3, PassionMinor)},
		},
		{
			Tag:         "tail",
			Description: "Tail (Orc characteristic)",
			Traits:      []Trait{trait("NightOwl", 40, CategoryUncategorized)},
		},

		// Backgrounds and scenes.
		{
			Tag:         "fire_background",
			Description: "Fire background suggests arsonist tendencies",
			Traits:      []Trait{trait("Pyromaniac", 55, CategoryMental)},
		},
		{
			Tag:         "nature_background",
			Description: "Nature background suggests a connection to the natural world",
			Traits:      []Trait{trait("Ascetic", 45, CategoryUncategorized)},
			Skills: []Skill{
				skill("Plants", 3, PassionMinor),
				skill("Animals", 2, PassionMinor),
			},
		},
		{
			Tag:         "tech_background",
			Description: "Technology background suggests a propensity for technology and innovation",
			Traits:      []Trait{trait("Transhumanist", 50, CategoryUncategorized)},
			Skills: []Skill{
				skill("Intellectual", 3, PassionMinor),
				skill("Crafting", 2, PassionNone),
			},
		},
	}
}
