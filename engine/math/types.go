package math

// Vec2 represents a 2D vector
type Vec2 struct {
	X, Y float32
}

// Vec3 represents a 3D vector
type Vec3 struct {
	X, Y, Z float32
}

// Vec4 represents a 4D vector
type Vec4 struct {
	X, Y, Z, W float32
}

// UVec2 is an unsigned 2D size or coordinate.
type UVec2 struct {
	X, Y uint32
}

// UVec3 is an unsigned 3D size, used for compute group counts and sizes.
type UVec3 struct {
	X, Y, Z uint32
}

/**
 * @brief Vertex of a full screen quad: clip space position and uv.
 */
type QuadVertex struct {
	/** @brief The position of the vertex */
	Position Vec2
	/** @brief The texture coordinate of the vertex. */
	Texcoord Vec2
}

/**
 * @brief Vertex of a point sprite or line cloud.
 */
type PointVertex struct {
	/** @brief The position of the vertex */
	Position Vec3
	/** @brief The colour of the vertex. */
	Colour Vec4
}
