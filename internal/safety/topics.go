// Package safety implements the layered content-safety pipeline: the
// deterministic keyword pre-filter, the platform policy merger, the
// semantic judge-model classifier, and refusal synthesis.
package safety

import (
	"regexp"

	"tutorgate/internal/domain"
)

// topicPatterns is the static pattern library. Patterns are deliberately
// conservative and context-aware ("kill yourself" flags self_harm, bare
// "kill" does not) to keep false positives low in an educational setting.
// The library is compiled once and read-only for the process lifetime.
var topicPatterns = map[domain.Topic][]*regexp.Regexp{
	domain.TopicViolence: {
		regexp.MustCompile(`(?i)\bhow to (kill|murder|hurt|attack) (someone|somebody|a person|people)\b`),
		regexp.MustCompile(`(?i)\bi('m| am) going to (kill|hurt|beat up|stab)\b`),
		regexp.MustCompile(`(?i)\bshoot up (a|the|my) school\b`),
		regexp.MustCompile(`(?i)\btorture (someone|somebody|him|her|them|an animal|animals)\b`),
	},
	domain.TopicSelfHarm: {
		regexp.MustCompile(`(?i)\bkill (yourself|myself|himself|herself|themselves)\b`),
		regexp.MustCompile(`(?i)\b(cut|cutting|hurt|hurting) (myself|yourself)\b`),
		regexp.MustCompile(`(?i)\bhow to (commit suicide|end my life)\b`),
		regexp.MustCompile(`(?i)\bi (want|wish) to die\b`),
		regexp.MustCompile(`(?i)\bself[- ]harm\b`),
	},
	domain.TopicSexualContent: {
		regexp.MustCompile(`(?i)\bporn(ography)?\b`),
		regexp.MustCompile(`(?i)\bsext(ing)?\b`),
		regexp.MustCompile(`(?i)\bsend (me )?nudes\b`),
		regexp.MustCompile(`(?i)\bexplicit sexual\b`),
	},
	domain.TopicDrugs: {
		regexp.MustCompile(`(?i)\bhow to (get|buy|make|cook) (weed|meth|cocaine|heroin|drugs)\b`),
		regexp.MustCompile(`(?i)\b(meth(amphetamine)?|cocaine|heroin|fentanyl)\b`),
		regexp.MustCompile(`(?i)\bget(ting)? high on\b`),
	},
	domain.TopicWeapons: {
		regexp.MustCompile(`(?i)\bhow to (make|build) (a |an )?(bomb|gun|weapon|explosive)\b`),
		regexp.MustCompile(`(?i)\b(pipe bomb|ghost gun|3d[- ]printed gun)\b`),
		regexp.MustCompile(`(?i)\bbuy (a |an )?(gun|firearm) without\b`),
	},
	domain.TopicHateSpeech: {
		regexp.MustCompile(`(?i)\bi hate all (jews|muslims|christians|immigrants|black|white|gay|trans) ?(people)?\b`),
		regexp.MustCompile(`(?i)\b(should|must|deserve to) (all )?die because (of )?(their|his|her) (race|religion|gender)\b`),
		regexp.MustCompile(`(?i)\bgo back to your (own )?country\b`),
	},
	domain.TopicProfanity: {
		regexp.MustCompile(`(?i)\bf[u*@]ck`),
		regexp.MustCompile(`(?i)\bsh[i*]t\b`),
		regexp.MustCompile(`(?i)\bbitch\b`),
		regexp.MustCompile(`(?i)\basshole\b`),
	},
	domain.TopicGambling: {
		regexp.MustCompile(`(?i)\bonline (casino|betting|poker)\b`),
		regexp.MustCompile(`(?i)\bplace (a |some )?bets?\b`),
		regexp.MustCompile(`(?i)\bbet (real )?money\b`),
		regexp.MustCompile(`(?i)\bsports betting\b`),
	},
	domain.TopicPersonalInfo: {
		regexp.MustCompile(`(?i)\bmy (home |street )?address is\b`),
		regexp.MustCompile(`(?i)\bmy phone number is\b`),
		regexp.MustCompile(`(?i)\bmy password is\b`),
		regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`), // SSN-shaped
		regexp.MustCompile(`\b\d{16}\b`),            // bare card-number-shaped
	},
}

// ScanTopics tests text against the pattern sets of every blocked topic and
// returns the flagged topics, preserving the order of the blocked list.
func ScanTopics(text string, blocked []domain.Topic) []domain.Topic {
	if text == "" {
		return nil
	}

	var flagged []domain.Topic
	for _, topic := range blocked {
		for _, re := range topicPatterns[topic] {
			if re.MatchString(text) {
				flagged = append(flagged, topic)
				break
			}
		}
	}
	return flagged
}
