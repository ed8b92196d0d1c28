package state

// Group locates one named state group within the error-state vector. Idx is
// the offset of its first state and DOF its degrees of freedom. Groups are
// contiguous and non-overlapping; the layout is fixed at compile time.
type Group struct {
	Idx int
	DOF int
}

// Size is the total error-state dimension. The optional magnetic field and
// wind groups are always present in the layout; when their estimation is
// inactive their covariance block is contractually held at zero.
const Size = 23

var (
	// Quat is the attitude error (tilt x, tilt y, yaw), rad
	Quat = Group{Idx: 0, DOF: 3}
	// Vel is the NED velocity error, m/s
	Vel = Group{Idx: 3, DOF: 3}
	// Pos is the NED position error, m
	Pos = Group{Idx: 6, DOF: 3}
	// GyroBias is the gyro bias error, rad/s
	GyroBias = Group{Idx: 9, DOF: 3}
	// AccelBias is the accelerometer bias error, m/s^2
	AccelBias = Group{Idx: 12, DOF: 3}
	// MagEarth is the earth magnetic field error, gauss
	MagEarth = Group{Idx: 15, DOF: 3}
	// MagBody is the body magnetic field bias error, gauss
	MagBody = Group{Idx: 18, DOF: 3}
	// WindVel is the horizontal wind velocity error, m/s
	WindVel = Group{Idx: 21, DOF: 2}
)

// Groups lists every state group in layout order.
func Groups() []Group {
	return []Group{Quat, Vel, Pos, GyroBias, AccelBias, MagEarth, MagBody, WindVel}
}

// Contains reports whether state index i belongs to group g.
func (g Group) Contains(i int) bool {
	return i >= g.Idx && i < g.Idx+g.DOF
}
