package safety

import (
	"encoding/base64"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"tutorgate/internal/domain"
)

func allTopicsConfig() domain.SafetyConfig {
	cfg := testDefaultConfig()
	cfg.BlockedTopics = domain.AllTopics()
	return cfg
}

func TestCheckInputCleanText(t *testing.T) {
	f := NewKeywordFilter()

	result := f.CheckInput([]domain.Message{
		domain.NewTextMessage(domain.RoleUser, "Can you explain photosynthesis?"),
	}, allTopicsConfig())

	assert.True(t, result.Safe)
	assert.Empty(t, result.FlaggedTopics)
	assert.Equal(t, domain.LayerKeyword, result.Layer)
}

func TestCheckInputFlagsTopics(t *testing.T) {
	f := NewKeywordFilter()
	cfg := allTopicsConfig()

	cases := []struct {
		name  string
		text  string
		topic domain.Topic
	}{
		{"self harm", "my friend told me to kill myself", domain.TopicSelfHarm},
		{"violence", "how to hurt someone at school", domain.TopicViolence},
		{"weapons", "how to make a bomb for my project", domain.TopicWeapons},
		{"drugs", "where can I find cocaine", domain.TopicDrugs},
		{"gambling", "best online casino for kids", domain.TopicGambling},
		{"personal info ssn", "my number is 123-45-6789", domain.TopicPersonalInfo},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			result := f.CheckInput([]domain.Message{
				domain.NewTextMessage(domain.RoleUser, tc.text),
			}, cfg)
			assert.False(t, result.Safe)
			assert.Contains(t, result.FlaggedTopics, tc.topic)
			assert.Equal(t, domain.LayerKeyword, result.Layer)
			assert.NotEmpty(t, result.Reason)
		})
	}
}

func TestCheckInputIgnoresUnblockedTopics(t *testing.T) {
	f := NewKeywordFilter()
	cfg := allTopicsConfig()
	cfg.BlockedTopics = []domain.Topic{domain.TopicViolence}

	result := f.CheckInput([]domain.Message{
		domain.NewTextMessage(domain.RoleUser, "best online casino to bet money"),
	}, cfg)

	assert.True(t, result.Safe, "gambling is not in the blocked set")
}

func TestCheckInputScansUserTurnsOnly(t *testing.T) {
	f := NewKeywordFilter()

	result := f.CheckInput([]domain.Message{
		domain.NewTextMessage(domain.RoleSystem, "how to make a bomb"),
		domain.NewTextMessage(domain.RoleUser, "hello"),
	}, allTopicsConfig())

	assert.True(t, result.Safe, "topic scan only covers user-authored text")
}

func TestCheckInputLengthLimit(t *testing.T) {
	f := NewKeywordFilter()
	cfg := allTopicsConfig()
	cfg.MaxInputLength = 10

	result := f.CheckInput([]domain.Message{
		domain.NewTextMessage(domain.RoleUser, strings.Repeat("a", 11)),
	}, cfg)

	assert.False(t, result.Safe)
	assert.Empty(t, result.FlaggedTopics, "structural violations carry no topics")
	assert.Contains(t, result.Reason, "maximum input length")
}

func TestCheckInputImagePolicy(t *testing.T) {
	f := NewKeywordFilter()
	cfg := allTopicsConfig()
	cfg.AllowImageInput = false

	result := f.CheckInput([]domain.Message{
		{Role: domain.RoleUser, Parts: []domain.ContentPart{
			domain.ImagePart{Data: "aGk=", MIMEType: "image/png"},
		}},
	}, cfg)

	assert.False(t, result.Safe)
	assert.Contains(t, result.Reason, "image input")
}

func TestCheckInputFilePolicy(t *testing.T) {
	f := NewKeywordFilter()

	file := func(mime string, size int) domain.ContentPart {
		return domain.FilePart{
			Data:     base64.StdEncoding.EncodeToString(make([]byte, size)),
			MIMEType: mime,
			FileName: "homework.bin",
		}
	}
	msg := func(p domain.ContentPart) []domain.Message {
		return []domain.Message{{Role: domain.RoleUser, Parts: []domain.ContentPart{p}}}
	}

	t.Run("uploads disabled", func(t *testing.T) {
		cfg := allTopicsConfig()
		cfg.AllowFileUpload = false
		result := f.CheckInput(msg(file("application/pdf", 10)), cfg)
		assert.False(t, result.Safe)
		assert.Contains(t, result.Reason, "file uploads")
	})

	t.Run("mime not allowed", func(t *testing.T) {
		result := f.CheckInput(msg(file("application/zip", 10)), allTopicsConfig())
		assert.False(t, result.Safe)
		assert.Contains(t, result.Reason, "application/zip")
	})

	t.Run("too large", func(t *testing.T) {
		cfg := allTopicsConfig()
		cfg.MaxFileSizeBytes = 16
		result := f.CheckInput(msg(file("application/pdf", 64)), cfg)
		assert.False(t, result.Safe)
		assert.Contains(t, result.Reason, "maximum size")
	})

	t.Run("acceptable file", func(t *testing.T) {
		result := f.CheckInput(msg(file("application/pdf", 64)), allTopicsConfig())
		assert.True(t, result.Safe)
	})
}

func TestCheckInputStructuralBeforeScan(t *testing.T) {
	f := NewKeywordFilter()
	cfg := allTopicsConfig()
	cfg.MaxInputLength = 5

	// The text both exceeds the limit and contains a flagged phrase; the
	// structural violation wins and no topic list is produced.
	result := f.CheckInput([]domain.Message{
		domain.NewTextMessage(domain.RoleUser, "how to make a bomb"),
	}, cfg)

	assert.False(t, result.Safe)
	assert.Empty(t, result.FlaggedTopics)
	assert.Contains(t, result.Reason, "maximum input length")
}

func TestCheckOutput(t *testing.T) {
	f := NewKeywordFilter()
	cfg := allTopicsConfig()

	safe := f.CheckOutput(domain.NewTextMessage(domain.RoleAssistant, "The capital of France is Paris."), cfg)
	assert.True(t, safe.Safe)

	unsafe := f.CheckOutput(domain.NewTextMessage(domain.RoleAssistant, "First, buy a gun without a permit."), cfg)
	assert.False(t, unsafe.Safe)
	assert.Contains(t, unsafe.FlaggedTopics, domain.TopicWeapons)
}

func TestCheckOutputIgnoresInputLengthLimit(t *testing.T) {
	f := NewKeywordFilter()
	cfg := allTopicsConfig()
	cfg.MaxInputLength = 10

	long := domain.NewTextMessage(domain.RoleAssistant, strings.Repeat("the water cycle ", 50))
	assert.True(t, f.CheckOutput(long, cfg).Safe)
}

func TestScanTopicsOrderFollowsBlockedList(t *testing.T) {
	text := "place a bet and buy cocaine"
	flagged := ScanTopics(text, []domain.Topic{domain.TopicGambling, domain.TopicDrugs})
	assert.Equal(t, []domain.Topic{domain.TopicGambling, domain.TopicDrugs}, flagged)

	flagged = ScanTopics(text, []domain.Topic{domain.TopicDrugs, domain.TopicGambling})
	assert.Equal(t, []domain.Topic{domain.TopicDrugs, domain.TopicGambling}, flagged)
}

func TestScanTopicsConservative(t *testing.T) {
	// Ordinary schoolwork phrasing must not trip the patterns.
	for _, text := range []string{
		"the assassination of Archduke Franz Ferdinand started WW1",
		"bacteria can kill other bacteria with antibiotics",
		"the bombing of Pearl Harbor happened in 1941",
		"what medications treat depression",
	} {
		assert.Empty(t, ScanTopics(text, domain.AllTopics()), "false positive on: %s", text)
	}
}
