package engine

// Phase is the externally-driven conversation phase. Lifecycle belongs to
// the caller; the engine only reads it. Speaking additionally asserts itself
// whenever the lip-sync controller reports live audio energy, regardless of
// the reported phase.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseListening
	PhaseThinking
	PhaseSpeaking

	numPhases
)

var phaseNames = [numPhases]string{
	PhaseIdle:      "idle",
	PhaseListening: "listening",
	PhaseThinking:  "thinking",
	PhaseSpeaking:  "speaking",
}

func (p Phase) String() string {
	if p < 0 || p >= numPhases {
		return "idle"
	}
	return phaseNames[p]
}

// ParsePhase resolves a phase label, defaulting to idle.
func ParsePhase(name string) Phase {
	for p, n := range phaseNames {
		if n == name {
			return Phase(p)
		}
	}
	return PhaseIdle
}

// Emotion is the discrete emotional state reported by the dialogue service.
type Emotion int

const (
	EmotionNeutral Emotion = iota
	EmotionHappy
	EmotionSad
	EmotionAngry
	EmotionSurprised
	EmotionThinking
	EmotionAnxious
	EmotionEmpathetic

	numEmotions
)

var emotionNames = [numEmotions]string{
	EmotionNeutral:    "neutral",
	EmotionHappy:      "happy",
	EmotionSad:        "sad",
	EmotionAngry:      "angry",
	EmotionSurprised:  "surprised",
	EmotionThinking:   "thinking",
	EmotionAnxious:    "anxious",
	EmotionEmpathetic: "empathetic",
}

func (e Emotion) String() string {
	if e < 0 || e >= numEmotions {
		return "neutral"
	}
	return emotionNames[e]
}

// ParseEmotion resolves an emotion label. Unknown labels degrade to neutral
// with ok=false so callers can log once and continue.
func ParseEmotion(name string) (Emotion, bool) {
	for e, n := range emotionNames {
		if n == name {
			return Emotion(e), true
		}
	}
	return EmotionNeutral, false
}

// MotionProfile carries the base arm pose and dynamics of one phase.
type MotionProfile struct {
	Base           PoseDelta
	BreathAmp      float64 // breathing sine amplitude on the arms, radians
	FidgetAmp      float64 // restlessness sine amplitude, radians
	TransitionRate float64 // pose target smoothing rate, 1/s
}

// Config tunes engine-wide scales. Zero values select the defaults.
type Config struct {
	// BreathScale and FidgetScale multiply every profile's procedural
	// amplitudes. 1.0 when zero.
	BreathScale float64
	FidgetScale float64
	// SpeakingDamp scales idle micro-motion while speech audio is active.
	// Micro-motion is reduced, never suppressed; a frozen torso while the
	// mouth moves reads as broken. 0.55 when zero.
	SpeakingDamp float64
	// Seed fixes the random streams for reproducible runs. Time-seeded
	// when zero.
	Seed int64
}

func (c Config) withDefaults() Config {
	if c.BreathScale == 0 {
		c.BreathScale = 1
	}
	if c.FidgetScale == 0 {
		c.FidgetScale = 1
	}
	if c.SpeakingDamp == 0 {
		c.SpeakingDamp = 0.55
	}
	return c
}
