package meeting

var (
	Reduce         = reduce
	LoudestSpeaker = loudestSpeaker
)

func InitialState(cfg Config) State {
	return initialState(cfg)
}

func (s *Session) Apply(ev Event) State {
	return s.apply(ev)
}

func (s *Session) Commit(f func(st *State)) State {
	return s.commit(f)
}

func (c Config) Normalize() Config {
	return c.normalize()
}
