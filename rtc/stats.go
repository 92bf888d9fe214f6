package rtc

// StatsReport is a snapshot of peer connection statistics.
type StatsReport struct {
	object
}

// JSON returns the report as a JSON object keyed by stat id.
func (r *StatsReport) JSON() ([]byte, error) {
	ctx, err := r.use()
	if err != nil {
		return nil, err
	}
	b, err := r.ctx.engine.StatsReportJSON(ctx, r.handle)
	return b, nativeErr("stats report json", err)
}

// Free releases the report.
func (r *StatsReport) Free() {
	if !r.markFreed() {
		return
	}
	r.ctx.release(r.handle, "stats report", r.ctx.engine.DeleteStatsReport)
}
